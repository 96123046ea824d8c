package storage

import (
	"context"

	"github.com/acounsel/asfour/internal/model"
)

// Save inserts a new organization.
func (r *PostgresRepo) SaveOrg(ctx context.Context, org *model.Organization) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveOrg", func() error {
		return r.db.WithContext(ctx).Create(org).Error
	})
	return translateError(err, "SaveOrg")
}

// UpdateOrg persists organization changes.
func (r *PostgresRepo) UpdateOrg(ctx context.Context, org *model.Organization) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "UpdateOrg", func() error {
		return r.db.WithContext(ctx).Save(org).Error
	})
	return translateError(err, "UpdateOrg")
}

// FindOrgByID loads one organization.
func (r *PostgresRepo) FindOrgByID(ctx context.Context, id int64) (*model.Organization, error) {
	var org model.Organization
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindOrgByID", func() error {
		return r.db.WithContext(ctx).First(&org, id).Error
	})
	if err != nil {
		return nil, translateError(err, "FindOrgByID")
	}
	return &org, nil
}

// SaveAutoreply inserts a new autoreply rule.
func (r *PostgresRepo) SaveAutoreply(ctx context.Context, rule *model.Autoreply) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveAutoreply", func() error {
		return r.db.WithContext(ctx).Create(rule).Error
	})
	return translateError(err, "SaveAutoreply")
}

// FindAutorepliesByOrg returns the organization's rules in insertion
// order. Rule ordering matters: the first match wins.
func (r *PostgresRepo) FindAutorepliesByOrg(ctx context.Context, orgID int64) ([]model.Autoreply, error) {
	var rules []model.Autoreply
	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "FindAutorepliesByOrg", func() error {
		return r.db.WithContext(ctx).
			Scopes(orgScope(orgID)).
			Preload("Tags").
			Order("id ASC").
			Find(&rules).Error
	})
	if err != nil {
		return nil, translateError(err, "FindAutorepliesByOrg")
	}
	return rules, nil
}

// SaveExhaustedJob records a dispatch job that ran out of redeliveries.
func (r *PostgresRepo) SaveExhaustedJob(ctx context.Context, job *model.ExhaustedJob) error {
	policy := newRetryPolicy(ctx, defaultRetryMaxElapsedTime)
	err := retryableOperation(ctx, policy, "SaveExhaustedJob", func() error {
		return r.db.WithContext(ctx).Create(job).Error
	})
	return translateError(err, "SaveExhaustedJob")
}
