package storage

import (
	"context"
	"time"

	"github.com/acounsel/asfour/internal/model"
)

// Thin adapters exposing the PostgresRepo through the per-entity
// interfaces the services depend on.

// OrgRepoAdapter adapts PostgresRepo to OrgRepo
type OrgRepoAdapter struct {
	repo *PostgresRepo
}

// NewOrgRepoAdapter creates a new adapter
func NewOrgRepoAdapter(repo *PostgresRepo) *OrgRepoAdapter {
	return &OrgRepoAdapter{repo: repo}
}

func (a *OrgRepoAdapter) Save(ctx context.Context, org *model.Organization) error {
	return a.repo.SaveOrg(ctx, org)
}

func (a *OrgRepoAdapter) Update(ctx context.Context, org *model.Organization) error {
	return a.repo.UpdateOrg(ctx, org)
}

func (a *OrgRepoAdapter) FindByID(ctx context.Context, id int64) (*model.Organization, error) {
	return a.repo.FindOrgByID(ctx, id)
}

func (a *OrgRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ContactRepoAdapter adapts PostgresRepo to ContactRepo
type ContactRepoAdapter struct {
	repo *PostgresRepo
}

// NewContactRepoAdapter creates a new adapter
func NewContactRepoAdapter(repo *PostgresRepo) *ContactRepoAdapter {
	return &ContactRepoAdapter{repo: repo}
}

func (a *ContactRepoAdapter) Save(ctx context.Context, contact *model.Contact) error {
	return a.repo.SaveContact(ctx, contact)
}

func (a *ContactRepoAdapter) Update(ctx context.Context, contact *model.Contact) error {
	return a.repo.UpdateContact(ctx, contact)
}

func (a *ContactRepoAdapter) FindByID(ctx context.Context, orgID, id int64) (*model.Contact, error) {
	return a.repo.FindContactByID(ctx, orgID, id)
}

func (a *ContactRepoAdapter) FindByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, error) {
	return a.repo.FindContactByPhone(ctx, orgID, phone)
}

func (a *ContactRepoAdapter) GetOrCreateByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, bool, error) {
	return a.repo.GetOrCreateByPhone(ctx, orgID, phone)
}

func (a *ContactRepoAdapter) AttachTags(ctx context.Context, contact *model.Contact, tags []model.Tag) error {
	return a.repo.AttachTags(ctx, contact, tags)
}

func (a *ContactRepoAdapter) BulkUpsert(ctx context.Context, contacts []model.Contact) error {
	return a.repo.BulkUpsertContacts(ctx, contacts)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// MessageRepoAdapter adapts PostgresRepo to MessageRepo
type MessageRepoAdapter struct {
	repo *PostgresRepo
}

// NewMessageRepoAdapter creates a new adapter
func NewMessageRepoAdapter(repo *PostgresRepo) *MessageRepoAdapter {
	return &MessageRepoAdapter{repo: repo}
}

func (a *MessageRepoAdapter) Save(ctx context.Context, message *model.Message) error {
	return a.repo.SaveMessage(ctx, message)
}

func (a *MessageRepoAdapter) FindByID(ctx context.Context, orgID, id int64) (*model.Message, error) {
	return a.repo.FindMessageByID(ctx, orgID, id)
}

func (a *MessageRepoAdapter) MarkSent(ctx context.Context, orgID, id int64, sentAt time.Time) (bool, error) {
	return a.repo.MarkSent(ctx, orgID, id, sentAt)
}

func (a *MessageRepoAdapter) ResolveRecipients(ctx context.Context, message *model.Message) ([]model.Contact, error) {
	return a.repo.ResolveRecipients(ctx, message)
}

func (a *MessageRepoAdapter) MostRecentSentBefore(ctx context.Context, orgID int64, t time.Time) (*model.Message, error) {
	return a.repo.MostRecentSentBefore(ctx, orgID, t)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// MessageLogRepoAdapter adapts PostgresRepo to MessageLogRepo
type MessageLogRepoAdapter struct {
	repo *PostgresRepo
}

// NewMessageLogRepoAdapter creates a new adapter
func NewMessageLogRepoAdapter(repo *PostgresRepo) *MessageLogRepoAdapter {
	return &MessageLogRepoAdapter{repo: repo}
}

func (a *MessageLogRepoAdapter) Save(ctx context.Context, entry *model.MessageLog) error {
	return a.repo.SaveMessageLog(ctx, entry)
}

func (a *MessageLogRepoAdapter) UpdateProviderStatus(ctx context.Context, sid, phone, providerStatus string) error {
	return a.repo.UpdateProviderStatus(ctx, sid, phone, providerStatus)
}

func (a *MessageLogRepoAdapter) FindByMessageID(ctx context.Context, orgID, messageID int64) ([]model.MessageLog, error) {
	return a.repo.FindMessageLogsByMessageID(ctx, orgID, messageID)
}

func (a *MessageLogRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ResponseRepoAdapter adapts PostgresRepo to ResponseRepo
type ResponseRepoAdapter struct {
	repo *PostgresRepo
}

// NewResponseRepoAdapter creates a new adapter
func NewResponseRepoAdapter(repo *PostgresRepo) *ResponseRepoAdapter {
	return &ResponseRepoAdapter{repo: repo}
}

func (a *ResponseRepoAdapter) Save(ctx context.Context, response *model.Response) error {
	return a.repo.SaveResponse(ctx, response)
}

func (a *ResponseRepoAdapter) AttachContact(ctx context.Context, responseID, contactID int64) error {
	return a.repo.AttachContactToResponse(ctx, responseID, contactID)
}

func (a *ResponseRepoAdapter) FindByOrg(ctx context.Context, orgID int64, limit, offset int) ([]model.Response, error) {
	return a.repo.FindResponsesByOrg(ctx, orgID, limit, offset)
}

func (a *ResponseRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// AutoreplyRepoAdapter adapts PostgresRepo to AutoreplyRepo
type AutoreplyRepoAdapter struct {
	repo *PostgresRepo
}

// NewAutoreplyRepoAdapter creates a new adapter
func NewAutoreplyRepoAdapter(repo *PostgresRepo) *AutoreplyRepoAdapter {
	return &AutoreplyRepoAdapter{repo: repo}
}

func (a *AutoreplyRepoAdapter) Save(ctx context.Context, rule *model.Autoreply) error {
	return a.repo.SaveAutoreply(ctx, rule)
}

func (a *AutoreplyRepoAdapter) FindByOrg(ctx context.Context, orgID int64) ([]model.Autoreply, error) {
	return a.repo.FindAutorepliesByOrg(ctx, orgID)
}

func (a *AutoreplyRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ExhaustedJobRepoAdapter adapts PostgresRepo to ExhaustedJobRepo
type ExhaustedJobRepoAdapter struct {
	repo *PostgresRepo
}

// NewExhaustedJobRepoAdapter creates a new adapter
func NewExhaustedJobRepoAdapter(repo *PostgresRepo) *ExhaustedJobRepoAdapter {
	return &ExhaustedJobRepoAdapter{repo: repo}
}

func (a *ExhaustedJobRepoAdapter) Save(ctx context.Context, job *model.ExhaustedJob) error {
	return a.repo.SaveExhaustedJob(ctx, job)
}

func (a *ExhaustedJobRepoAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}
