package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/observer"
	"github.com/acounsel/asfour/pkg/logger"
)

// --- Retry Logic Configuration ---
const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	defaultRetryMaxElapsedTime  = 10 * time.Second
	readRetryMaxElapsedTime     = 5 * time.Second
)

// newRetryPolicy creates a new exponential backoff policy with context awareness.
func newRetryPolicy(ctx context.Context, maxElapsedTime time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// retryableOperation wraps a database operation with retry logic and
// records its duration.
func retryableOperation(ctx context.Context, policy backoff.BackOffContext, opName string, operation func() error) error {
	start := time.Now()
	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying DB operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	err := backoff.RetryNotify(func() error {
		err := operation()
		if err != nil {
			// Non-retryable GORM errors first
			if errors.Is(err, gorm.ErrRecordNotFound) ||
				errors.Is(err, gorm.ErrInvalidTransaction) ||
				errors.Is(err, gorm.ErrDuplicatedKey) ||
				errors.Is(err, gorm.ErrForeignKeyViolated) {
				return backoff.Permanent(err)
			}
			if isTransientError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, policy, notify)

	observer.ObserveDbOperationDuration(opName, time.Since(start), err)
	return err
}

// isTransientError checks if the error suggests a temporary issue like a network problem.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 — Connection Exception
		// Class 53 — Insufficient Resources
		// 40P01 deadlock, 40001 serialization failure
		if strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "40P01") ||
			strings.HasPrefix(pgErr.Code, "40001") {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"connection reset by peer",
		"could not translate host name",
		"no route to host",
		"database system is starting up",
		"connection timed out",
		"connection reset",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// translateError maps gorm errors to application sentinel errors.
func translateError(err error, opName string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", opName, apperrors.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", opName, apperrors.ErrDuplicate)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", opName, apperrors.ErrTimeout)
	default:
		return fmt.Errorf("%s: %v: %w", opName, err, apperrors.ErrDatabase)
	}
}

// PostgresRepo implements the repository interfaces over one gorm handle.
type PostgresRepo struct {
	db *gorm.DB
}

// orgScope returns a gorm scope restricting a query to one tenant. Every
// tenant-owned read goes through this filter; there is no cross-tenant
// query path.
func orgScope(orgID int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("org_id = ?", orgID)
	}
}

// NewPostgresRepo connects to postgres with retry and optionally migrates
// the schema.
func NewPostgresRepo(dsn string, autoMigrate bool) (*PostgresRepo, error) {
	var db *gorm.DB

	operation := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			if isTransientError(err) {
				logger.Log.Warn("Failed to connect to postgres (transient), retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to connect to postgres: %w", err))
		}
		return nil
	}

	notify := func(err error, d time.Duration) {
		logger.Log.Warn("Retrying postgres connection", zap.Error(err), zap.Duration("after", d))
	}

	policy := newRetryPolicy(context.Background(), 30*time.Second)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := db.AutoMigrate(
			&model.Organization{},
			&model.UserProfile{},
			&model.Tag{},
			&model.Contact{},
			&model.Message{},
			&model.MessageLog{},
			&model.Response{},
			&model.Autoreply{},
			&model.ExhaustedJob{},
		); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate schema: %w", err)
		}
		logger.Log.Info("Postgres schema migrated")
	}

	logger.Log.Info("Connected to postgres")
	return &PostgresRepo{db: db}, nil
}

// NewPostgresRepoWithDB wraps an existing gorm handle; used by tests.
func NewPostgresRepoWithDB(db *gorm.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Close closes the underlying database connection pool.
func (r *PostgresRepo) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
