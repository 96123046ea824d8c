package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/pkg/utils"
)

// SaveMessageLog appends one delivery log entry. Each send attempt gets a
// fresh row; nothing here overwrites an earlier attempt.
func (r *PostgresRepo) SaveMessageLog(ctx context.Context, entry *model.MessageLog) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveMessageLog", func() error {
		return r.db.WithContext(ctx).Create(entry).Error
	})
	return translateError(err, "SaveMessageLog")
}

// UpdateProviderStatus updates the delivery status string of the log row
// keyed by (sid, phone). Returns apperrors.ErrNotFound when no row
// matches; the webhook layer logs and swallows that.
func (r *PostgresRepo) UpdateProviderStatus(ctx context.Context, sid, phone, providerStatus string) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "UpdateProviderStatus", func() error {
		updates := map[string]interface{}{
			"provider_status": providerStatus,
			"updated_at":      utils.Now(),
		}
		if model.TerminalProviderStatuses[providerStatus] {
			updates["finished"] = true
		}
		result := r.db.WithContext(ctx).
			Model(&model.MessageLog{}).
			Where("sid = ? AND phone = ?", sid, phone).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translateError(err, "UpdateProviderStatus")
	}
	return nil
}

// FindMessageLogsByMessageID lists delivery log entries for one message.
func (r *PostgresRepo) FindMessageLogsByMessageID(ctx context.Context, orgID, messageID int64) ([]model.MessageLog, error) {
	var entries []model.MessageLog
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindMessageLogsByMessageID", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Where("message_id = ?", messageID).
			Order("id ASC").
			Find(&entries).Error
	})
	if err != nil {
		return nil, translateError(err, "FindMessageLogsByMessageID")
	}
	return entries, nil
}
