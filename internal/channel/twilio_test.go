package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

func testCreds() Credentials {
	return Credentials{AccountSID: "AC123", AuthToken: "secret"}
}

func TestSend_SMS(t *testing.T) {
	var gotPath string
	var gotForm map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"From":           r.PostFormValue("From"),
			"To":             r.PostFormValue("To"),
			"Body":           r.PostFormValue("Body"),
			"StatusCallback": r.PostFormValue("StatusCallback"),
		}
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid": "SM900", "status": "queued"}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, 5*time.Second)
	sid, err := client.Send(context.Background(), testCreds(), SendRequest{
		Kind:           KindSMS,
		From:           "+15550001111",
		To:             "+15551234567",
		Body:           "hello there",
		StatusCallback: "https://example.org/webhooks/1/status",
	})

	require.NoError(t, err)
	assert.Equal(t, "SM900", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "hello there", gotForm["Body"])
	assert.Equal(t, "+15551234567", gotForm["To"])
	assert.Equal(t, "https://example.org/webhooks/1/status", gotForm["StatusCallback"])
}

func TestSend_VoiceUsesCallsResource(t *testing.T) {
	var gotPath, gotURL string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotURL = r.PostFormValue("Url")
		w.Write([]byte(`{"sid": "CA42"}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, 5*time.Second)
	sid, err := client.Send(context.Background(), testCreds(), SendRequest{
		Kind:        KindVoice,
		From:        "+15550001111",
		To:          "+15551234567",
		CallbackURL: "https://example.org/webhooks/1/voice-call/7",
	})

	require.NoError(t, err)
	assert.Equal(t, "CA42", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", gotPath)
	assert.Equal(t, "https://example.org/webhooks/1/voice-call/7", gotURL)
}

func TestSend_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' Phone Number"}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, 5*time.Second)
	sid, err := client.Send(context.Background(), testCreds(), SendRequest{
		Kind: KindSMS,
		From: "+15550001111",
		To:   "not-a-number",
		Body: "hi",
	})

	require.Error(t, err)
	assert.Empty(t, sid)
	assert.True(t, errors.Is(err, apperrors.ErrProvider))
	assert.Contains(t, err.Error(), "21211")
}

func TestSend_UnknownKind(t *testing.T) {
	client := NewTwilioClient("http://localhost:0", time.Second)
	_, err := client.Send(context.Background(), testCreds(), SendRequest{Kind: Kind("carrier-pigeon")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestCreateConferenceParticipant(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"sid": "CP1"}`))
	}))
	defer server.Close()

	client := NewTwilioClient(server.URL, 5*time.Second)
	sid, err := client.CreateConferenceParticipant(context.Background(), testCreds(), "org-1-msg-7", "+15550001111", "+15551234567")

	require.NoError(t, err)
	assert.Equal(t, "CP1", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC123/Conferences/org-1-msg-7/Participants.json", gotPath)
}

func TestWhatsAppAddress(t *testing.T) {
	assert.Equal(t, "whatsapp:+15551234567", WhatsAppAddress("+15551234567"))
	assert.Equal(t, "whatsapp:+15551234567", WhatsAppAddress("whatsapp:+15551234567"))
}

func TestKindForChannel(t *testing.T) {
	tests := []struct {
		channel  model.Channel
		expected Kind
		ok       bool
	}{
		{model.ChannelSMS, KindSMS, true},
		{model.ChannelMixed, KindSMS, true},
		{model.ChannelWhatsApp, KindWhatsApp, true},
		{model.ChannelVoice, KindVoice, true},
		{model.ChannelConference, KindCall, true},
		{model.ChannelEmail, "", false},
	}
	for _, tt := range tests {
		kind, ok := KindForChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, string(tt.channel))
		assert.Equal(t, tt.expected, kind, string(tt.channel))
	}
}
