package tenant

import (
	"context"
	"errors"
)

// Key for tenant ID in context
type contextKey string

const (
	orgIDKey     contextKey = "orgID"
	requestIDKey contextKey = "requestID"
)

// ErrOrgIDNotFound is returned when no organization ID is found in context
var ErrOrgIDNotFound = errors.New("organization ID not found in context")

// WithOrgID adds an organization ID to the context
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// FromContext extracts the organization ID from the context
func FromContext(ctx context.Context) (int64, error) {
	orgID, ok := ctx.Value(orgIDKey).(int64)
	if !ok || orgID == 0 {
		return 0, ErrOrgIDNotFound
	}
	return orgID, nil
}

// MustFromContext extracts the organization ID from the context or panics
func MustFromContext(ctx context.Context) int64 {
	orgID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return orgID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
