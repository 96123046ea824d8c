package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	notifymock "github.com/acounsel/asfour/internal/notify/mock"
	"github.com/acounsel/asfour/internal/progress"
	progressmock "github.com/acounsel/asfour/internal/progress/mock"
	storagemock "github.com/acounsel/asfour/internal/storage/mock"
	"github.com/acounsel/asfour/internal/usecase"
	"github.com/acounsel/asfour/internal/webhook"
	"github.com/acounsel/asfour/pkg/logger"
)

const (
	testBaseURL = "https://hooks.example.org"
	testToken   = "auth-token-1"
)

func init() {
	logger.Log = zap.NewNop()
}

type statusCall struct {
	sid, phone, status string
}

type reconcilerStub struct {
	reply      string
	prompt     string
	err        error
	statusErr  error
	attributed *model.Message

	inbound  []usecase.InboundMessage
	voice    []usecase.VoiceCallback
	statuses []statusCall
}

func (s *reconcilerStub) HandleInboundMessage(ctx context.Context, orgID int64, in usecase.InboundMessage) (string, error) {
	s.inbound = append(s.inbound, in)
	return s.reply, s.err
}

func (s *reconcilerStub) HandleVoiceCallback(ctx context.Context, orgID int64, in usecase.VoiceCallback) (string, error) {
	s.voice = append(s.voice, in)
	return s.prompt, s.err
}

func (s *reconcilerStub) HandleStatusCallback(ctx context.Context, orgID int64, sid, phone, status string) error {
	s.statuses = append(s.statuses, statusCall{sid: sid, phone: phone, status: status})
	return s.statusErr
}

func (s *reconcilerStub) MostRecentMessage(ctx context.Context, orgID int64, t time.Time) (*model.Message, error) {
	if s.attributed == nil {
		return nil, apperrors.ErrNotFound
	}
	return s.attributed, nil
}

type enqueuerStub struct {
	jobs []*model.DispatchJob
	err  error
}

func (e *enqueuerStub) Enqueue(ctx context.Context, job *model.DispatchJob) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

type handlerFixture struct {
	recon     *reconcilerStub
	orgs      *storagemock.OrgRepoMock
	contacts  *storagemock.ContactRepoMock
	messages  *storagemock.MessageRepoMock
	logs      *storagemock.MessageLogRepoMock
	responses *storagemock.ResponseRepoMock
	publisher *enqueuerStub
	progress  *progressmock.StoreMock
	notifier  *notifymock.NotifierMock
	h         *webhook.Handler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		recon:     &reconcilerStub{},
		orgs:      new(storagemock.OrgRepoMock),
		contacts:  new(storagemock.ContactRepoMock),
		messages:  new(storagemock.MessageRepoMock),
		logs:      new(storagemock.MessageLogRepoMock),
		responses: new(storagemock.ResponseRepoMock),
		publisher: &enqueuerStub{},
		progress:  new(progressmock.StoreMock),
		notifier:  new(notifymock.NotifierMock),
	}
	f.h = webhook.NewHandler(
		f.recon, f.orgs, f.contacts, f.messages, f.logs, f.responses,
		f.publisher, f.progress, f.notifier,
		"ops@example.org", testBaseURL,
	)
	return f
}

func (f *handlerFixture) knownOrg(id int64) *model.Organization {
	org := &model.Organization{ID: id, Name: "Acme", AuthToken: testToken}
	f.orgs.On("FindByID", testifymock.Anything, id).Return(org, nil)
	return org
}

// signedPost builds a form POST carrying a valid provider signature.
func signedPost(path string, form url.Values, pathVals map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(webhook.SignatureHeader, webhook.ComputeSignature(testToken, testBaseURL+path, form))
	for k, v := range pathVals {
		r.SetPathValue(k, v)
	}
	return r
}

func signedGet(path string, pathVals map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set(webhook.SignatureHeader, webhook.ComputeSignature(testToken, testBaseURL+path, nil))
	for k, v := range pathVals {
		r.SetPathValue(k, v)
	}
	return r
}

func TestInboundMessage_RepliesWithMarkup(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.recon.reply = "Thanks for reaching out"

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("To", "+15550001111")
	form.Set("Body", "hello")
	form.Set("MessageSid", "SM100")

	w := httptest.NewRecorder()
	f.h.InboundMessage(w, signedPost("/webhooks/1/message", form, map[string]string{"orgID": "1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<Message>Thanks for reaching out</Message>")

	require.Len(t, f.recon.inbound, 1)
	in := f.recon.inbound[0]
	assert.Equal(t, "+15551234567", in.From)
	assert.Equal(t, "hello", in.Body)
	assert.Equal(t, "SM100", in.MessageSid)
	assert.Equal(t, "hello", in.Raw["Body"])
}

func TestInboundMessage_BadSignatureForbidden(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("Body", "hello")

	r := signedPost("/webhooks/1/message", form, map[string]string{"orgID": "1"})
	r.Header.Set(webhook.SignatureHeader, "bogus")

	w := httptest.NewRecorder()
	f.h.InboundMessage(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	// Nothing processed on signature failure.
	assert.Empty(t, f.recon.inbound)
}

func TestInboundMessage_UnknownOrg(t *testing.T) {
	f := newHandlerFixture()
	f.orgs.On("FindByID", testifymock.Anything, int64(9)).Return(nil, apperrors.ErrNotFound)

	form := url.Values{}
	form.Set("From", "+15551234567")

	w := httptest.NewRecorder()
	f.h.InboundMessage(w, signedPost("/webhooks/9/message", form, map[string]string{"orgID": "9"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.recon.inbound)
}

func TestInboundMessage_WhatsAppSenderDetected(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.recon.reply = "ok"

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234567")
	form.Set("Body", "hi")
	form.Set("MessageSid", "SM101")

	w := httptest.NewRecorder()
	f.h.InboundMessage(w, signedPost("/webhooks/1/message", form, map[string]string{"orgID": "1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.recon.inbound, 1)
	assert.Equal(t, model.ChannelWhatsApp, f.recon.inbound[0].Method)
}

func TestVoice_PromptRendersSayAndRecord(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.recon.prompt = "Please leave a message after the tone."

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("CallSid", "CA1")
	form.Set("CallStatus", "ringing")

	w := httptest.NewRecorder()
	f.h.Voice(w, signedPost("/webhooks/1/voice", form, map[string]string{"orgID": "1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<Say>Please leave a message after the tone.</Say>")
	assert.Contains(t, body, `action="https://hooks.example.org/webhooks/1/voice/status"`)
	assert.Contains(t, body, `maxLength="120"`)
}

func TestVoiceStatus_CompletedRendersEmptyResponse(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.recon.prompt = ""

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("CallSid", "CA2")
	form.Set("CallStatus", "completed")
	form.Set("RecordingUrl", "https://api.example.org/recordings/CA2")

	w := httptest.NewRecorder()
	f.h.VoiceStatus(w, signedPost("/webhooks/1/voice/status", form, map[string]string{"orgID": "1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")

	require.Len(t, f.recon.voice, 1)
	assert.Equal(t, "completed", f.recon.voice[0].CallStatus)
	assert.Equal(t, "https://api.example.org/recordings/CA2", f.recon.voice[0].RecordingURL)
}

func TestStatus_UpdatesDeliveryLog(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)

	form := url.Values{}
	form.Set("MessageSid", "SM1")
	form.Set("MessageStatus", "delivered")
	form.Set("To", "+15551234567")

	w := httptest.NewRecorder()
	f.h.Status(w, signedPost("/webhooks/1/status", form, map[string]string{"orgID": "1"}))

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, f.recon.statuses, 1)
	assert.Equal(t, statusCall{sid: "SM1", phone: "+15551234567", status: "delivered"}, f.recon.statuses[0])
}

func TestVoiceCall_ConferenceDialsSession(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.messages.On("FindByID", testifymock.Anything, int64(1), int64(7)).
		Return(&model.Message{ID: 7, OrgID: 1, Method: model.ChannelConference, Body: "standup"}, nil)

	w := httptest.NewRecorder()
	f.h.VoiceCall(w, signedGet("/webhooks/1/voice-call/7", map[string]string{"orgID": "1", "messageID": "7"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Conference>org-1-msg-7</Conference>")
}

func TestVoiceCall_PlaysRecording(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.messages.On("FindByID", testifymock.Anything, int64(1), int64(8)).
		Return(&model.Message{ID: 8, OrgID: 1, Method: model.ChannelVoice, Body: "fallback", RecordingURL: "https://cdn.example.org/rec.mp3"}, nil)

	w := httptest.NewRecorder()
	f.h.VoiceCall(w, signedGet("/webhooks/1/voice-call/8", map[string]string{"orgID": "1", "messageID": "8"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Play>https://cdn.example.org/rec.mp3</Play>")
}

func TestVoiceCall_SpeaksBodyWithoutRecording(t *testing.T) {
	f := newHandlerFixture()
	f.knownOrg(1)
	f.messages.On("FindByID", testifymock.Anything, int64(1), int64(9)).
		Return(&model.Message{ID: 9, OrgID: 1, Method: model.ChannelVoice, Body: "school is closed today"}, nil)

	w := httptest.NewRecorder()
	f.h.VoiceCall(w, signedGet("/webhooks/1/voice-call/9", map[string]string{"orgID": "1", "messageID": "9"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Say>school is closed today</Say>")
}

func TestCreateMessage_PersistsAndEnqueues(t *testing.T) {
	f := newHandlerFixture()
	f.messages.On("Save", testifymock.Anything, testifymock.Anything).
		Run(func(args testifymock.Arguments) {
			args.Get(1).(*model.Message).ID = 42
		}).
		Return(nil)
	f.progress.On("SetStage", testifymock.Anything, testifymock.Anything, 0, 0, "queued").Return(nil)

	body := strings.NewReader(`{"body":"town hall tonight","method":"sms"}`)
	r := httptest.NewRequest(http.MethodPost, "/orgs/1/messages", body)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.CreateMessage(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID     string `json:"job_id"`
		MessageID int64  `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, int64(42), resp.MessageID)

	require.Len(t, f.publisher.jobs, 1)
	job := f.publisher.jobs[0]
	assert.Equal(t, resp.JobID, job.JobID)
	assert.Equal(t, int64(1), job.OrgID)
	assert.Equal(t, int64(42), job.MessageID)
}

func TestCreateMessage_ValidationFailure(t *testing.T) {
	f := newHandlerFixture()

	body := strings.NewReader(`{"method":"sms"}`) // missing body
	r := httptest.NewRequest(http.MethodPost, "/orgs/1/messages", body)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.CreateMessage(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.publisher.jobs)
	f.messages.AssertNotCalled(t, "Save", testifymock.Anything, testifymock.Anything)
}

func TestAccountRequest_EmailsOperator(t *testing.T) {
	f := newHandlerFixture()
	f.notifier.On("SendEmail", testifymock.Anything, "ops@example.org", testifymock.Anything, testifymock.Anything).Return(nil)

	body := strings.NewReader(`{"name":"Dana","email":"dana@example.org","organization":"Acme Advocacy"}`)
	r := httptest.NewRequest(http.MethodPost, "/account-request", body)

	w := httptest.NewRecorder()
	f.h.HandleAccountRequest(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	f.notifier.AssertExpectations(t)
}

func TestAccountRequest_InvalidEmail(t *testing.T) {
	f := newHandlerFixture()

	body := strings.NewReader(`{"name":"Dana","email":"not-an-email","organization":"Acme"}`)
	r := httptest.NewRequest(http.MethodPost, "/account-request", body)

	w := httptest.NewRecorder()
	f.h.HandleAccountRequest(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.notifier.AssertNotCalled(t, "SendEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestMessageLogs_ListsDeliveryLog(t *testing.T) {
	f := newHandlerFixture()
	f.logs.On("FindByMessageID", testifymock.Anything, int64(1), int64(7)).
		Return([]model.MessageLog{
			{ID: 1, OrgID: 1, MessageID: 7, Phone: "+15551234567", SID: "SM1", Status: "success", ProviderStatus: "delivered"},
			{ID: 2, OrgID: 1, MessageID: 7, Phone: "+15559990000", Status: "failed", Error: "invalid number"},
		}, nil)

	r := httptest.NewRequest(http.MethodGet, "/orgs/1/messages/7/logs", nil)
	r.SetPathValue("orgID", "1")
	r.SetPathValue("messageID", "7")

	w := httptest.NewRecorder()
	f.h.MessageLogs(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		MessageID int64              `json:"message_id"`
		Logs      []model.MessageLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.MessageID)
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, "delivered", resp.Logs[0].ProviderStatus)
	assert.Equal(t, "invalid number", resp.Logs[1].Error)
}

func TestResponses_AttributesCampaignWindow(t *testing.T) {
	f := newHandlerFixture()
	received := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	f.recon.attributed = &model.Message{ID: 42, OrgID: 1}
	f.responses.On("FindByOrg", testifymock.Anything, int64(1), 50, 0).
		Return([]model.Response{
			{ID: 9, OrgID: 1, Phone: "+15551234567", Body: "count me in", DateReceived: received},
		}, nil)

	r := httptest.NewRequest(http.MethodGet, "/orgs/1/responses", nil)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.Responses(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Responses []struct {
			ID        int64  `json:"id"`
			Body      string `json:"body"`
			MessageID *int64 `json:"message_id"`
		} `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 1)
	assert.Equal(t, "count me in", resp.Responses[0].Body)
	require.NotNil(t, resp.Responses[0].MessageID)
	assert.Equal(t, int64(42), *resp.Responses[0].MessageID)
}

func TestResponses_NoCampaignWindowLeavesUnattributed(t *testing.T) {
	f := newHandlerFixture()
	f.responses.On("FindByOrg", testifymock.Anything, int64(1), 10, 0).
		Return([]model.Response{{ID: 9, OrgID: 1, Body: "hi"}}, nil)

	r := httptest.NewRequest(http.MethodGet, "/orgs/1/responses?limit=10", nil)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.Responses(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Responses []struct {
			MessageID *int64 `json:"message_id"`
		} `json:"responses"`
		Limit int `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 1)
	assert.Nil(t, resp.Responses[0].MessageID)
	assert.Equal(t, 10, resp.Limit)
}

func TestImportContacts_UpsertsRows(t *testing.T) {
	f := newHandlerFixture()

	var imported []model.Contact
	f.contacts.On("BulkUpsert", testifymock.Anything, testifymock.Anything).
		Run(func(args testifymock.Arguments) {
			imported = args.Get(1).([]model.Contact)
		}).
		Return(nil)

	csvBody := strings.NewReader(
		"first_name,last_name,phone,email,has_whatsapp\n" +
			"Dana,Reyes,+15551234567,dana@example.org,true\n" +
			"Sam,,5559876543,,\n" +
			",,,missing-phone@example.org,\n")
	r := httptest.NewRequest(http.MethodPost, "/orgs/1/contacts/import", csvBody)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.ImportContacts(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 1, resp.Skipped)

	require.Len(t, imported, 2)
	assert.Equal(t, int64(1), imported[0].OrgID)
	assert.Equal(t, "Dana", imported[0].FirstName)
	assert.Equal(t, "+15551234567", imported[0].Phone)
	assert.True(t, imported[0].HasWhatsApp)
	assert.Equal(t, "Sam", imported[1].FirstName)
	assert.Equal(t, "5559876543", imported[1].Phone)
}

func TestImportContacts_RequiresPhoneColumn(t *testing.T) {
	f := newHandlerFixture()

	csvBody := strings.NewReader("first_name,email\nDana,dana@example.org\n")
	r := httptest.NewRequest(http.MethodPost, "/orgs/1/contacts/import", csvBody)
	r.SetPathValue("orgID", "1")

	w := httptest.NewRecorder()
	f.h.ImportContacts(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.contacts.AssertNotCalled(t, "BulkUpsert", testifymock.Anything, testifymock.Anything)
}

func TestJobProgress_ReturnsState(t *testing.T) {
	f := newHandlerFixture()
	f.progress.On("Get", testifymock.Anything, "job-1").
		Return(&progress.State{JobID: "job-1", Stage: 9, Total: 12, Message: "complete"}, nil)

	r := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	r.SetPathValue("jobID", "job-1")

	w := httptest.NewRecorder()
	f.h.JobProgress(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JobID   string `json:"job_id"`
		Percent int    `json:"percent"`
		Total   int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, 100, resp.Percent)
	assert.Equal(t, 12, resp.Total)
}

func TestJobProgress_UnknownJob(t *testing.T) {
	f := newHandlerFixture()
	f.progress.On("Get", testifymock.Anything, "job-x").Return(nil, apperrors.ErrNotFound)

	r := httptest.NewRequest(http.MethodGet, "/jobs/job-x", nil)
	r.SetPathValue("jobID", "job-x")

	w := httptest.NewRecorder()
	f.h.JobProgress(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
