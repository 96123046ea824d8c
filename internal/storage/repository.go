package storage

import (
	"context"
	"time"

	"github.com/acounsel/asfour/internal/model"
)

// OrgRepo defines organization storage operations
type OrgRepo interface {
	Save(ctx context.Context, org *model.Organization) error
	Update(ctx context.Context, org *model.Organization) error
	FindByID(ctx context.Context, id int64) (*model.Organization, error)
	Close(ctx context.Context) error
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	Save(ctx context.Context, contact *model.Contact) error
	Update(ctx context.Context, contact *model.Contact) error
	FindByID(ctx context.Context, orgID, id int64) (*model.Contact, error)
	FindByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, error)
	// GetOrCreateByPhone resolves a contact by normalized phone within an
	// organization, creating a bare contact when none exists. The bool
	// reports whether a row was created.
	GetOrCreateByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, bool, error)
	AttachTags(ctx context.Context, contact *model.Contact, tags []model.Tag) error
	BulkUpsert(ctx context.Context, contacts []model.Contact) error
	Close(ctx context.Context) error
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	Save(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, orgID, id int64) (*model.Message, error)
	// MarkSent stamps date_sent exactly once; the bool reports whether
	// this call did the stamping (false when already sent).
	MarkSent(ctx context.Context, orgID, id int64, sentAt time.Time) (bool, error)
	// ResolveRecipients returns the deduplicated union of directly
	// attached contacts and members of any attached tag, excluding
	// unsubscribed contacts.
	ResolveRecipients(ctx context.Context, message *model.Message) ([]model.Contact, error)
	// MostRecentSentBefore returns the message with the greatest
	// (date_sent, id) whose date_sent is <= t for the organization.
	MostRecentSentBefore(ctx context.Context, orgID int64, t time.Time) (*model.Message, error)
	Close(ctx context.Context) error
}

// MessageLogRepo defines delivery log storage operations
type MessageLogRepo interface {
	Save(ctx context.Context, entry *model.MessageLog) error
	// UpdateProviderStatus updates the stored delivery status of the log
	// row keyed by (sid, phone). Returns apperrors.ErrNotFound when no
	// row matches.
	UpdateProviderStatus(ctx context.Context, sid, phone, providerStatus string) error
	FindByMessageID(ctx context.Context, orgID, messageID int64) ([]model.MessageLog, error)
	Close(ctx context.Context) error
}

// ResponseRepo defines inbound response storage operations
type ResponseRepo interface {
	Save(ctx context.Context, response *model.Response) error
	AttachContact(ctx context.Context, responseID, contactID int64) error
	FindByOrg(ctx context.Context, orgID int64, limit, offset int) ([]model.Response, error)
	Close(ctx context.Context) error
}

// AutoreplyRepo defines autoreply rule storage operations
type AutoreplyRepo interface {
	Save(ctx context.Context, rule *model.Autoreply) error
	// FindByOrg returns the organization's rules in insertion (ID) order,
	// tags preloaded.
	FindByOrg(ctx context.Context, orgID int64) ([]model.Autoreply, error)
	Close(ctx context.Context) error
}

// ExhaustedJobRepo defines exhausted dispatch job storage operations
type ExhaustedJobRepo interface {
	Save(ctx context.Context, job *model.ExhaustedJob) error
	Close(ctx context.Context) error
}
