// Package webhook is the HTTP surface: provider callbacks (inbound
// messages, voice calls, delivery status), the message enqueue API and
// operational probes. Handlers stay synchronous and bounded; anything
// slow runs behind the job stream or the forwarding pool.
package webhook

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/dispatch"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/notify"
	"github.com/acounsel/asfour/internal/observer"
	"github.com/acounsel/asfour/internal/progress"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/internal/tenant"
	"github.com/acounsel/asfour/internal/twiml"
	"github.com/acounsel/asfour/internal/usecase"
	"github.com/acounsel/asfour/internal/validator"
	"github.com/acounsel/asfour/pkg/logger"
	"github.com/acounsel/asfour/pkg/utils"
)

// Reconciler is the inbound processing surface the handlers need.
type Reconciler interface {
	HandleInboundMessage(ctx context.Context, orgID int64, in usecase.InboundMessage) (string, error)
	HandleVoiceCallback(ctx context.Context, orgID int64, in usecase.VoiceCallback) (string, error)
	HandleStatusCallback(ctx context.Context, orgID int64, sid, phone, status string) error
	MostRecentMessage(ctx context.Context, orgID int64, t time.Time) (*model.Message, error)
}

// JobEnqueuer publishes dispatch jobs to the job stream.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *model.DispatchJob) error
}

// Handler holds the webhook surface's collaborators.
type Handler struct {
	recon      Reconciler
	orgs       storage.OrgRepo
	contacts   storage.ContactRepo
	messages   storage.MessageRepo
	logs       storage.MessageLogRepo
	responses  storage.ResponseRepo
	publisher  JobEnqueuer
	progress   progress.Store
	notifier   notify.Notifier
	adminEmail string
	baseURL    string // public root the provider signs callbacks against
}

// NewHandler wires the webhook handlers.
func NewHandler(
	recon Reconciler,
	orgs storage.OrgRepo,
	contacts storage.ContactRepo,
	messages storage.MessageRepo,
	logs storage.MessageLogRepo,
	responses storage.ResponseRepo,
	publisher JobEnqueuer,
	progressStore progress.Store,
	notifier notify.Notifier,
	adminEmail string,
	baseURL string,
) *Handler {
	return &Handler{
		recon:      recon,
		orgs:       orgs,
		contacts:   contacts,
		messages:   messages,
		logs:       logs,
		responses:  responses,
		publisher:  publisher,
		progress:   progressStore,
		notifier:   notifier,
		adminEmail: adminEmail,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// authenticate parses the org from the path, loads it and checks the
// provider signature. On failure it writes the error response and the
// webhook metric; the caller must return immediately.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, endpoint string) (*model.Organization, int64, bool) {
	orgID, err := strconv.ParseInt(r.PathValue("orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		observer.IncWebhook(0, endpoint, "bad_request")
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return nil, 0, false
	}

	if err := r.ParseForm(); err != nil {
		observer.IncWebhook(orgID, endpoint, "bad_request")
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "malformed form payload"})
		return nil, orgID, false
	}

	org, err := h.orgs.FindByID(r.Context(), orgID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			observer.IncWebhook(orgID, endpoint, "not_found")
			utils.WriteJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown organization"})
			return nil, orgID, false
		}
		observer.IncWebhook(orgID, endpoint, "error")
		logger.FromContext(r.Context()).Error("Failed to load organization for webhook",
			zap.Int64("org_id", orgID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return nil, orgID, false
	}

	if !ValidRequest(r, org.AuthToken, h.baseURL) {
		observer.IncWebhook(orgID, endpoint, "forbidden")
		logger.FromContext(r.Context()).Warn("Webhook signature validation failed",
			zap.Int64("org_id", orgID), zap.String("endpoint", endpoint))
		utils.WriteJSONResponse(w, http.StatusForbidden, map[string]string{"error": "signature validation failed"})
		return nil, orgID, false
	}

	return org, orgID, true
}

// requestContext scopes the request with tenant and a fresh request ID.
func (h *Handler) requestContext(r *http.Request, orgID int64) context.Context {
	ctx := tenant.WithOrgID(r.Context(), orgID)
	ctx = tenant.WithRequestID(ctx, uuid.NewString())
	return logger.WithLogger(ctx, logger.Log.With(zap.Int64("org_id", orgID)))
}

// InboundMessage handles POST /webhooks/{orgID}/message and replies with
// message markup.
func (h *Handler) InboundMessage(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := h.authenticate(w, r, "message")
	if !ok {
		return
	}
	ctx := h.requestContext(r, orgID)

	in := usecase.InboundMessage{
		From:       r.PostFormValue("From"),
		To:         r.PostFormValue("To"),
		Body:       r.PostFormValue("Body"),
		MessageSid: r.PostFormValue("MessageSid"),
		Raw:        flattenForm(r.PostForm),
	}
	if strings.HasPrefix(in.From, model.WhatsAppPrefix) {
		in.Method = model.ChannelWhatsApp
	}

	reply, err := h.recon.HandleInboundMessage(ctx, orgID, in)
	if err != nil {
		observer.IncWebhook(orgID, "message", "error")
		logger.FromContext(ctx).Error("Failed to process inbound message", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	observer.IncWebhook(orgID, "message", "ok")
	writeTwiML(ctx, w, newMessageReply(reply))
}

// Voice handles POST /webhooks/{orgID}/voice: the provider asks what to do
// with an incoming call.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	h.handleVoice(w, r, "voice")
}

// VoiceStatus handles POST /webhooks/{orgID}/voice/status: recording and
// call lifecycle callbacks.
func (h *Handler) VoiceStatus(w http.ResponseWriter, r *http.Request) {
	h.handleVoice(w, r, "voice_status")
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request, endpoint string) {
	_, orgID, ok := h.authenticate(w, r, endpoint)
	if !ok {
		return
	}
	ctx := h.requestContext(r, orgID)

	in := usecase.VoiceCallback{
		From:              r.PostFormValue("From"),
		CallSid:           r.PostFormValue("CallSid"),
		CallStatus:        r.PostFormValue("CallStatus"),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		TranscriptionText: r.PostFormValue("TranscriptionText"),
		Raw:               flattenForm(r.PostForm),
	}

	prompt, err := h.recon.HandleVoiceCallback(ctx, orgID, in)
	if err != nil {
		observer.IncWebhook(orgID, endpoint, "error")
		logger.FromContext(ctx).Error("Failed to process voice callback", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	observer.IncWebhook(orgID, endpoint, "ok")
	doc := newVoiceReply(prompt, h.voiceStatusURL(orgID))
	writeTwiML(ctx, w, doc)
}

// Status handles POST /webhooks/{orgID}/status: message delivery status
// callbacks keyed by (sid, recipient phone). A callback for an unknown sid
// is swallowed; the provider must not retry those.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := h.authenticate(w, r, "status")
	if !ok {
		return
	}
	ctx := h.requestContext(r, orgID)

	sid := firstFormValue(r, "MessageSid", "SmsSid", "CallSid")
	status := firstFormValue(r, "MessageStatus", "SmsStatus", "CallStatus")
	phone := r.PostFormValue("To")

	if err := h.recon.HandleStatusCallback(ctx, orgID, sid, phone, status); err != nil {
		observer.IncWebhook(orgID, "status", "error")
		logger.FromContext(ctx).Error("Failed to process status callback",
			zap.String("sid", sid), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	observer.IncWebhook(orgID, "status", "ok")
	w.WriteHeader(http.StatusNoContent)
}

// VoiceCall handles GET|POST /webhooks/{orgID}/voice-call/{messageID}: the
// markup for an outbound voice campaign leg. Conference messages dial the
// shared session; voice messages play the recording or speak the body.
func (h *Handler) VoiceCall(w http.ResponseWriter, r *http.Request) {
	_, orgID, ok := h.authenticate(w, r, "voice_call")
	if !ok {
		return
	}
	ctx := h.requestContext(r, orgID)

	messageID, err := strconv.ParseInt(r.PathValue("messageID"), 10, 64)
	if err != nil || messageID <= 0 {
		observer.IncWebhook(orgID, "voice_call", "bad_request")
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
		return
	}

	msg, err := h.messages.FindByID(ctx, orgID, messageID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			observer.IncWebhook(orgID, "voice_call", "not_found")
			utils.WriteJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown message"})
			return
		}
		observer.IncWebhook(orgID, "voice_call", "error")
		logger.FromContext(ctx).Error("Failed to load message for voice call",
			zap.Int64("message_id", messageID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	observer.IncWebhook(orgID, "voice_call", "ok")
	writeTwiML(ctx, w, newVoiceCallReply(msg))
}

// AccountRequest is the payload of the public signup-interest form.
type AccountRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Organization string `json:"organization" validate:"required"`
	Phone        string `json:"phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// HandleAccountRequest handles POST /account-request and emails the
// operator. Unauthenticated on purpose; it is the front door.
func (h *Handler) HandleAccountRequest(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if err := validator.Validate(req); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	subject := fmt.Sprintf("Account request from %s", req.Organization)
	body := fmt.Sprintf("Name: %s\nEmail: %s\nOrganization: %s\nPhone: %s\n\n%s",
		req.Name, req.Email, req.Organization, req.Phone, req.Notes)

	if err := h.notifier.SendEmail(r.Context(), h.adminEmail, subject, body); err != nil {
		logger.FromContext(r.Context()).Error("Failed to send account request notice", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "failed to deliver request"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// CreateMessage handles POST /orgs/{orgID}/messages: persist the draft and
// enqueue a dispatch job. The response returns immediately with the job ID;
// fan-out happens in the consumer.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.PathValue("orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return
	}
	ctx := h.requestContext(r, orgID)

	var msg model.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	msg.OrgID = orgID
	if err := validator.Validate(&msg); err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.messages.Save(ctx, &msg); err != nil {
		logger.FromContext(ctx).Error("Failed to persist message", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "failed to save message"})
		return
	}

	job := &model.DispatchJob{
		JobID:     uuid.NewString(),
		OrgID:     orgID,
		MessageID: msg.ID,
		SenderID:  msg.CreatedByID,
	}

	if h.progress != nil {
		if err := h.progress.SetStage(ctx, job.JobID, 0, 0, "queued"); err != nil {
			logger.FromContext(ctx).Debug("Failed to seed job progress", zap.Error(err))
		}
	}

	if err := h.publisher.Enqueue(ctx, job); err != nil {
		logger.FromContext(ctx).Error("Failed to enqueue dispatch job",
			zap.String("job_id", job.JobID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue dispatch"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.JobID,
		"message_id": msg.ID,
	})
}

// MessageLogs handles GET /orgs/{orgID}/messages/{messageID}/logs and
// lists the per-recipient delivery log for one dispatch.
func (h *Handler) MessageLogs(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.PathValue("orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return
	}
	messageID, err := strconv.ParseInt(r.PathValue("messageID"), 10, 64)
	if err != nil || messageID <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid message id"})
		return
	}
	ctx := h.requestContext(r, orgID)

	entries, err := h.logs.FindByMessageID(ctx, orgID, messageID)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to list delivery logs",
			zap.Int64("message_id", messageID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message_id": messageID,
		"logs":       entries,
	})
}

// responseItem is one listed response plus the campaign window it falls
// in, derived at read time from the most recent message sent before it.
type responseItem struct {
	model.Response
	MessageID *int64 `json:"message_id,omitempty"`
}

// Responses handles GET /orgs/{orgID}/responses?limit=&offset= and lists
// inbound responses newest first, each attributed to its campaign window.
func (h *Handler) Responses(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.PathValue("orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return
	}
	ctx := h.requestContext(r, orgID)

	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 1<<30)

	responses, err := h.responses.FindByOrg(ctx, orgID, limit, offset)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to list responses", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	items := make([]responseItem, 0, len(responses))
	for _, resp := range responses {
		item := responseItem{Response: resp}
		msg, err := h.recon.MostRecentMessage(ctx, orgID, resp.DateReceived)
		if err == nil && msg != nil {
			item.MessageID = &msg.ID
		} else if err != nil && !apperrors.IsNotFoundError(err) {
			logger.FromContext(ctx).Warn("Failed to attribute response to a campaign window",
				zap.Int64("response_id", resp.ID), zap.Error(err))
		}
		items = append(items, item)
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"responses": items,
		"limit":     limit,
		"offset":    offset,
	})
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// ImportContacts handles POST /orgs/{orgID}/contacts/import: a CSV body
// with a header row naming at least a phone column. Rows are upserted by
// (org, phone); rows without a phone are skipped and counted.
func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.PathValue("orgID"), 10, 64)
	if err != nil || orgID <= 0 {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return
	}
	ctx := h.requestContext(r, orgID)

	reader := csv.NewReader(r.Body)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "empty or malformed csv"})
		return
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["phone"]; !ok {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "csv header must include a phone column"})
		return
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var contacts []model.Contact
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "malformed csv row"})
			return
		}
		phone := field(record, "phone")
		if phone == "" {
			skipped++
			continue
		}
		contact := model.Contact{
			OrgID:           orgID,
			FirstName:       field(record, "first_name"),
			LastName:        field(record, "last_name"),
			Phone:           phone,
			Email:           field(record, "email"),
			IsInternational: strings.EqualFold(field(record, "is_international"), "true"),
			HasWhatsApp:     strings.EqualFold(field(record, "has_whatsapp"), "true"),
		}
		if method := field(record, "preferred_method"); method != "" {
			contact.PreferredMethod = model.Channel(strings.ToLower(method))
		}
		contacts = append(contacts, contact)
	}

	if err := h.contacts.BulkUpsert(ctx, contacts); err != nil {
		logger.FromContext(ctx).Error("Failed to import contacts",
			zap.Int("rows", len(contacts)), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "failed to import contacts"})
		return
	}

	logger.FromContext(ctx).Info("Imported contacts",
		zap.Int("imported", len(contacts)), zap.Int("skipped", skipped))
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"imported": len(contacts),
		"skipped":  skipped,
	})
}

// JobProgress handles GET /jobs/{jobID} and reads the dispatch progress
// state back from Redis.
func (h *Handler) JobProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")
	if jobID == "" {
		utils.WriteJSONResponse(w, http.StatusBadRequest, map[string]string{"error": "missing job id"})
		return
	}

	state, err := h.progress.Get(r.Context(), jobID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			utils.WriteJSONResponse(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
			return
		}
		logger.FromContext(r.Context()).Error("Failed to read job progress",
			zap.String("job_id", jobID), zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"job_id":     state.JobID,
		"stage":      state.Stage,
		"total":      state.Total,
		"message":    state.Message,
		"percent":    state.Percent(),
		"updated_at": state.UpdatedAt,
	})
}

func (h *Handler) voiceStatusURL(orgID int64) string {
	return fmt.Sprintf("%s/webhooks/%d/voice/status", h.baseURL, orgID)
}

// newMessageReply builds the markup replying to an inbound message.
func newMessageReply(reply string) *twiml.Response {
	doc := twiml.NewResponse()
	if reply != "" {
		doc.AddMessage(reply)
	}
	return doc
}

// newVoiceReply builds the call markup: speak the prompt and record, or an
// empty document when there is nothing to say.
func newVoiceReply(prompt, recordAction string) *twiml.Response {
	doc := twiml.NewResponse()
	if prompt != "" {
		doc.AddSay(prompt).AddRecord(recordAction, 120)
	}
	return doc
}

// newVoiceCallReply builds the outbound campaign leg markup.
func newVoiceCallReply(msg *model.Message) *twiml.Response {
	doc := twiml.NewResponse()
	switch {
	case msg.Method == model.ChannelConference:
		doc.AddDialConference(dispatch.ConferenceName(msg.OrgID, msg.ID))
	case msg.RecordingURL != "":
		doc.AddPlay(msg.RecordingURL)
	default:
		doc.AddSay(msg.Body)
	}
	return doc
}

func writeTwiML(ctx context.Context, w http.ResponseWriter, doc *twiml.Response) {
	body, err := doc.Render()
	if err != nil {
		logger.FromContext(ctx).Error("Failed to render reply markup", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func firstFormValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := r.PostFormValue(k); v != "" {
			return v
		}
	}
	return ""
}

func flattenForm(form url.Values) map[string]string {
	if len(form) == 0 {
		return nil
	}
	out := make(map[string]string, len(form))
	for k := range form {
		out[k] = form.Get(k)
	}
	return out
}
