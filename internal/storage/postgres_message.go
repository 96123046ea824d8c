package storage

import (
	"context"
	"time"

	"github.com/acounsel/asfour/internal/model"
)

// SaveMessage inserts a new message with its tag and contact attachments.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message *model.Message) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveMessage", func() error {
		return r.db.WithContext(ctx).Create(message).Error
	})
	return translateError(err, "SaveMessage")
}

// FindMessageByID loads one message with targeting preloaded.
func (r *PostgresRepo) FindMessageByID(ctx context.Context, orgID, id int64) (*model.Message, error) {
	var message model.Message
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindMessageByID", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Preload("Tags").
			Preload("Contacts").
			First(&message, id).Error
	})
	if err != nil {
		return nil, translateError(err, "FindMessageByID")
	}
	return &message, nil
}

// MarkSent stamps date_sent exactly once. The conditional update makes a
// redelivered dispatch job a no-op here: only the first attempt flips the
// draft to sent.
func (r *PostgresRepo) MarkSent(ctx context.Context, orgID, id int64, sentAt time.Time) (bool, error) {
	var stamped bool
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "MarkSent", func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Scopes(orgScope(orgID)).
			Where("id = ? AND date_sent IS NULL", id).
			Update("date_sent", sentAt)
		stamped = result.RowsAffected > 0
		return result.Error
	})
	if err != nil {
		return false, translateError(err, "MarkSent")
	}
	return stamped, nil
}

// ResolveRecipients computes the recipient set for a message: contacts
// attached directly, union contacts carrying any attached tag. One SELECT
// on contacts, so deduplication is structural. Unsubscribed contacts are
// excluded.
func (r *PostgresRepo) ResolveRecipients(ctx context.Context, message *model.Message) ([]model.Contact, error) {
	var contacts []model.Contact

	directSub := r.db.Table("message_contacts").
		Select("contact_id").
		Where("message_id = ?", message.ID)
	tagSub := r.db.Table("contact_tags").
		Select("contact_id").
		Where("tag_id IN (?)", r.db.Table("message_tags").
			Select("tag_id").
			Where("message_id = ?", message.ID))

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "ResolveRecipients", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(message.OrgID)).
			Where("unsubscribed = ?", false).
			Where("id IN (?) OR id IN (?)", directSub, tagSub).
			Order("id ASC").
			Find(&contacts).Error
	})
	if err != nil {
		return nil, translateError(err, "ResolveRecipients")
	}
	return contacts, nil
}

// MostRecentSentBefore answers "which campaign does a reply at time t
// respond to": the sent message with the greatest (date_sent, id) whose
// date_sent is <= t. Ties on date_sent break toward the larger ID. This
// is recomputed on read; there is no stored foreign key from responses
// to messages.
func (r *PostgresRepo) MostRecentSentBefore(ctx context.Context, orgID int64, t time.Time) (*model.Message, error) {
	var message model.Message
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "MostRecentSentBefore", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Where("date_sent IS NOT NULL AND date_sent <= ?", t).
			Order("date_sent DESC, id DESC").
			First(&message).Error
	})
	if err != nil {
		return nil, translateError(err, "MostRecentSentBefore")
	}
	return &message, nil
}
