package storage

import (
	"context"

	"github.com/acounsel/asfour/internal/model"
)

// SaveResponse inserts one inbound response.
func (r *PostgresRepo) SaveResponse(ctx context.Context, response *model.Response) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveResponse", func() error {
		return r.db.WithContext(ctx).Create(response).Error
	})
	return translateError(err, "SaveResponse")
}

// AttachContactToResponse links a resolved contact to a response. The
// only mutation a response sees after creation.
func (r *PostgresRepo) AttachContactToResponse(ctx context.Context, responseID, contactID int64) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "AttachContactToResponse", func() error {
		return r.db.WithContext(ctx).
			Model(&model.Response{}).
			Where("id = ?", responseID).
			Update("contact_id", contactID).Error
	})
	return translateError(err, "AttachContactToResponse")
}

// FindResponsesByOrg lists an organization's responses, newest first.
func (r *PostgresRepo) FindResponsesByOrg(ctx context.Context, orgID int64, limit, offset int) ([]model.Response, error) {
	var responses []model.Response
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindResponsesByOrg", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Order("date_received DESC, id DESC").
			Limit(limit).
			Offset(offset).
			Find(&responses).Error
	})
	if err != nil {
		return nil, translateError(err, "FindResponsesByOrg")
	}
	return responses, nil
}
