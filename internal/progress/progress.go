// Package progress tracks dispatch job state in Redis. Stages step from 0
// (queued) to 9 (complete); the API tier reads them back so callers can
// poll a job's percent-done without touching the database.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/acounsel/asfour/internal/apperrors"
)

const (
	// FinalStage is the stage number of a completed job.
	FinalStage = 9

	keyPrefix  = "dispatch:progress:"
	defaultTTL = 24 * time.Hour
)

// State is the recorded progress of one dispatch job.
type State struct {
	JobID     string    `json:"job_id"`
	Stage     int       `json:"stage"`
	Total     int       `json:"total"` // recipient count, 0 until resolved
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent converts the stage counter to a 0-100 figure.
func (s State) Percent() int {
	if s.Stage >= FinalStage {
		return 100
	}
	return s.Stage * 100 / FinalStage
}

// Store reads and writes job progress.
type Store interface {
	SetStage(ctx context.Context, jobID string, stage, total int, message string) error
	Get(ctx context.Context, jobID string) (*State, error)
	Close() error
}

// RedisStore implements Store on a Redis connection.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: defaultTTL}, nil
}

// NewRedisStoreWithClient wraps an already established client.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: defaultTTL}
}

// SetStage records the job's current stage. Keys expire after a day; progress
// is operational state, not a system of record.
func (s *RedisStore) SetStage(ctx context.Context, jobID string, stage, total int, message string) error {
	state := State{
		JobID:     jobID,
		Stage:     stage,
		Total:     total,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode progress state: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+jobID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store progress for job %s: %w", jobID, err)
	}
	return nil
}

// Get returns a job's last recorded state.
func (s *RedisStore) Get(ctx context.Context, jobID string) (*State, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no progress for job %s: %w", jobID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress for job %s: %w", jobID, err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("corrupt progress state for job %s: %w", jobID, err)
	}
	return &state, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
