package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/acounsel/asfour/internal/model"
)

// --- OrgRepo Mock ---

// OrgRepoMock mocks the OrgRepo interface
type OrgRepoMock struct {
	mock.Mock
}

func (m *OrgRepoMock) Save(ctx context.Context, org *model.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *OrgRepoMock) Update(ctx context.Context, org *model.Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *OrgRepoMock) FindByID(ctx context.Context, id int64) (*model.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

func (m *OrgRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

func (m *ContactRepoMock) Save(ctx context.Context, contact *model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *ContactRepoMock) Update(ctx context.Context, contact *model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

func (m *ContactRepoMock) FindByID(ctx context.Context, orgID, id int64) (*model.Contact, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) FindByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, error) {
	args := m.Called(ctx, orgID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) GetOrCreateByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, bool, error) {
	args := m.Called(ctx, orgID, phone)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Contact), args.Bool(1), args.Error(2)
}

func (m *ContactRepoMock) AttachTags(ctx context.Context, contact *model.Contact, tags []model.Tag) error {
	args := m.Called(ctx, contact, tags)
	return args.Error(0)
}

func (m *ContactRepoMock) BulkUpsert(ctx context.Context, contacts []model.Contact) error {
	args := m.Called(ctx, contacts)
	return args.Error(0)
}

func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

func (m *MessageRepoMock) Save(ctx context.Context, message *model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MessageRepoMock) FindByID(ctx context.Context, orgID, id int64) (*model.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) MarkSent(ctx context.Context, orgID, id int64, sentAt time.Time) (bool, error) {
	args := m.Called(ctx, orgID, id, sentAt)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepoMock) ResolveRecipients(ctx context.Context, message *model.Message) ([]model.Contact, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

func (m *MessageRepoMock) MostRecentSentBefore(ctx context.Context, orgID int64, t time.Time) (*model.Message, error) {
	args := m.Called(ctx, orgID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MessageLogRepo Mock ---

// MessageLogRepoMock mocks the MessageLogRepo interface
type MessageLogRepoMock struct {
	mock.Mock
}

func (m *MessageLogRepoMock) Save(ctx context.Context, entry *model.MessageLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MessageLogRepoMock) UpdateProviderStatus(ctx context.Context, sid, phone, providerStatus string) error {
	args := m.Called(ctx, sid, phone, providerStatus)
	return args.Error(0)
}

func (m *MessageLogRepoMock) FindByMessageID(ctx context.Context, orgID, messageID int64) ([]model.MessageLog, error) {
	args := m.Called(ctx, orgID, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MessageLog), args.Error(1)
}

func (m *MessageLogRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ResponseRepo Mock ---

// ResponseRepoMock mocks the ResponseRepo interface
type ResponseRepoMock struct {
	mock.Mock
}

func (m *ResponseRepoMock) Save(ctx context.Context, response *model.Response) error {
	args := m.Called(ctx, response)
	return args.Error(0)
}

func (m *ResponseRepoMock) AttachContact(ctx context.Context, responseID, contactID int64) error {
	args := m.Called(ctx, responseID, contactID)
	return args.Error(0)
}

func (m *ResponseRepoMock) FindByOrg(ctx context.Context, orgID int64, limit, offset int) ([]model.Response, error) {
	args := m.Called(ctx, orgID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Response), args.Error(1)
}

func (m *ResponseRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- AutoreplyRepo Mock ---

// AutoreplyRepoMock mocks the AutoreplyRepo interface
type AutoreplyRepoMock struct {
	mock.Mock
}

func (m *AutoreplyRepoMock) Save(ctx context.Context, rule *model.Autoreply) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *AutoreplyRepoMock) FindByOrg(ctx context.Context, orgID int64) ([]model.Autoreply, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Autoreply), args.Error(1)
}

func (m *AutoreplyRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ExhaustedJobRepo Mock ---

// ExhaustedJobRepoMock mocks the ExhaustedJobRepo interface
type ExhaustedJobRepoMock struct {
	mock.Mock
}

func (m *ExhaustedJobRepoMock) Save(ctx context.Context, job *model.ExhaustedJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *ExhaustedJobRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
