package storage

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
)

// SaveContact inserts a new contact. Phone normalization runs in the
// model's BeforeSave hook.
func (r *PostgresRepo) SaveContact(ctx context.Context, contact *model.Contact) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveContact", func() error {
		return r.db.WithContext(ctx).Create(contact).Error
	})
	return translateError(err, "SaveContact")
}

// UpdateContact persists contact changes.
func (r *PostgresRepo) UpdateContact(ctx context.Context, contact *model.Contact) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "UpdateContact", func() error {
		return r.db.WithContext(ctx).Omit("Tags").Save(contact).Error
	})
	return translateError(err, "UpdateContact")
}

// FindContactByID loads one contact within an organization.
func (r *PostgresRepo) FindContactByID(ctx context.Context, orgID, id int64) (*model.Contact, error) {
	var contact model.Contact
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindContactByID", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Preload("Tags").
			First(&contact, id).Error
	})
	if err != nil {
		return nil, translateError(err, "FindContactByID")
	}
	return &contact, nil
}

// FindContactByPhone looks a contact up by normalized phone within an
// organization.
func (r *PostgresRepo) FindContactByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, error) {
	var contact model.Contact
	normalized := model.NormalizePhone(phone, true)
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindContactByPhone", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Where("phone = ?", normalized).
			First(&contact).Error
	})
	if err != nil {
		return nil, translateError(err, "FindContactByPhone")
	}
	return &contact, nil
}

// GetOrCreateByPhone resolves a contact by phone, creating a bare row
// when none exists. Inbound numbers are already E.164, so normalization
// here treats them as international.
func (r *PostgresRepo) GetOrCreateByPhone(ctx context.Context, orgID int64, phone string) (*model.Contact, bool, error) {
	contact, err := r.FindContactByPhone(ctx, orgID, phone)
	if err == nil {
		return contact, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	created := &model.Contact{
		OrgID:           orgID,
		Phone:           phone,
		IsInternational: true,
	}
	if saveErr := r.SaveContact(ctx, created); saveErr != nil {
		// A concurrent webhook may have created the row between the
		// lookup and the insert; fall back to reading it.
		if errors.Is(saveErr, apperrors.ErrDuplicate) {
			existing, findErr := r.FindContactByPhone(ctx, orgID, phone)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, saveErr
	}
	return created, true, nil
}

// AttachTags adds tags to a contact. Additive only: existing tags are
// never removed here.
func (r *PostgresRepo) AttachTags(ctx context.Context, contact *model.Contact, tags []model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "AttachTags", func() error {
		return r.db.WithContext(ctx).Model(contact).Association("Tags").Append(tags)
	})
	return translateError(err, "AttachTags")
}

// BulkUpsertContacts inserts or refreshes contacts in one statement,
// conflict-keyed on (org_id, phone). Used by CSV import.
func (r *PostgresRepo) BulkUpsertContacts(ctx context.Context, contacts []model.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "BulkUpsertContacts", func() error {
		return r.db.WithContext(ctx).
			Omit("Tags").
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "org_id"}, {Name: "phone"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"first_name", "last_name", "email", "preferred_method",
					"has_whatsapp", "updated_at",
				}),
			}).
			Create(&contacts).Error
	})
	return translateError(err, "BulkUpsertContacts")
}
