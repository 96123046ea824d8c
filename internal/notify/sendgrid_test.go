package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

func TestSendEmail(t *testing.T) {
	var gotAuth string
	var gotPayload mailSendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewSendGridNotifierWithBase(server.URL, "sg-key", "noreply@example.org", 5*time.Second)
	err := n.SendEmail(context.Background(), "staff@example.org", "New response", "msg from +15551234567: hello")

	require.NoError(t, err)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	assert.Equal(t, "noreply@example.org", gotPayload.From.Email)
	assert.Equal(t, "New response", gotPayload.Subject)
	require.Len(t, gotPayload.Personalizations, 1)
	require.Len(t, gotPayload.Personalizations[0].To, 1)
	assert.Equal(t, "staff@example.org", gotPayload.Personalizations[0].To[0].Email)
	require.Len(t, gotPayload.Content, 1)
	assert.Equal(t, "text/plain", gotPayload.Content[0].Type)
	assert.Equal(t, "msg from +15551234567: hello", gotPayload.Content[0].Value)
}

func TestSendHTMLEmail(t *testing.T) {
	var gotPayload mailSendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewSendGridNotifierWithBase(server.URL, "sg-key", "noreply@example.org", 5*time.Second)
	err := n.SendHTMLEmail(context.Background(), "staff@example.org", "New response",
		"<p>msg from +15551234567: hello</p>")

	require.NoError(t, err)
	require.Len(t, gotPayload.Content, 1)
	assert.Equal(t, "text/html", gotPayload.Content[0].Type)
	assert.Equal(t, "<p>msg from +15551234567: hello</p>", gotPayload.Content[0].Value)
}

func TestSendEmail_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	n := NewSendGridNotifierWithBase(server.URL, "wrong-key", "noreply@example.org", 5*time.Second)
	err := n.SendEmail(context.Background(), "staff@example.org", "subject", "body")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrProvider))
}

func TestSendEmail_MissingRecipient(t *testing.T) {
	n := NewSendGridNotifier("sg-key", "noreply@example.org", time.Second)
	err := n.SendEmail(context.Background(), "", "subject", "body")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}
