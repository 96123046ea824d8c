// Package usecase holds the inbound reconciliation engine, the autoreply
// matcher, the forwarding worker pool, and the dispatch job consumer.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/cache"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/pkg/logger"
)

// VoicemailPrompt is returned for voice callbacks that are not yet a
// completed call.
const VoicemailPrompt = "Please leave a message after the tone."

// InboundMessage is a parsed message-medium webhook callback.
type InboundMessage struct {
	From       string
	To         string
	Body       string
	MessageSid string
	Method     model.Channel // sms unless the sender carried the whatsapp scheme
	Raw        map[string]string
}

// VoiceCallback is a parsed voice-medium webhook callback.
type VoiceCallback struct {
	From              string
	CallSid           string
	CallStatus        string
	RecordingURL      string
	TranscriptionText string
	Raw               map[string]string
}

// ReconcileService is the inbound reconciliation engine: it turns provider
// webhook callbacks into Responses, resolves contacts, applies autoreply
// rules and triggers forwarding.
type ReconcileService struct {
	orgs      storage.OrgRepo
	contacts  storage.ContactRepo
	messages  storage.MessageRepo
	logs      storage.MessageLogRepo
	responses storage.ResponseRepo
	matcher   *AutoreplyMatcher
	forwarder IForwardWorker
	cache     *cache.ContactCache
}

// NewReconcileService wires the engine over its collaborators. The cache
// may be nil; reconciliation then always goes to the database.
func NewReconcileService(
	orgs storage.OrgRepo,
	contacts storage.ContactRepo,
	messages storage.MessageRepo,
	logs storage.MessageLogRepo,
	responses storage.ResponseRepo,
	matcher *AutoreplyMatcher,
	forwarder IForwardWorker,
	contactCache *cache.ContactCache,
) *ReconcileService {
	return &ReconcileService{
		orgs:      orgs,
		contacts:  contacts,
		messages:  messages,
		logs:      logs,
		responses: responses,
		matcher:   matcher,
		forwarder: forwarder,
		cache:     contactCache,
	}
}

// HandleInboundMessage processes one message-medium callback and returns
// the reply text to render back to the provider. A Response row is always
// created; contact resolution and autoreply failures degrade to the org
// default so the sender always gets a reply.
func (s *ReconcileService) HandleInboundMessage(ctx context.Context, orgID int64, in InboundMessage) (string, error) {
	log := logger.FromContext(ctx).With(zap.Int64("org_id", orgID), zap.String("sid", in.MessageSid))

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return "", err
	}

	phone := model.NormalizePhone(in.From, true)
	method := in.Method
	if method == "" {
		method = model.ChannelSMS
	}

	resp := &model.Response{
		OrgID:          orgID,
		Method:         method,
		Phone:          phone,
		Body:           in.Body,
		SID:            in.MessageSid,
		DateReceived:   time.Now().UTC(),
		ProviderFields: rawFields(in.Raw),
	}

	if err := s.responses.Save(ctx, resp); err != nil {
		// The reply still goes out; losing the row is an ops problem, not
		// the sender's.
		log.Error("Failed to persist inbound response", zap.Error(err))
	}

	contact := s.resolveContact(ctx, orgID, phone)
	if contact != nil {
		s.attachContact(ctx, resp, contact)
		s.captureEmail(ctx, contact, in.Body)
	}

	s.enqueueForward(ctx, org, resp)

	reply := s.matcher.Match(ctx, org, contact, in.Body)
	return reply, nil
}

// HandleVoiceCallback processes one voice-medium callback. Non-completed
// statuses produce the voicemail prompt and no Response; a completed call
// creates a Response carrying the recording and triggers forwarding. The
// returned prompt is empty for completed calls.
func (s *ReconcileService) HandleVoiceCallback(ctx context.Context, orgID int64, in VoiceCallback) (string, error) {
	log := logger.FromContext(ctx).With(zap.Int64("org_id", orgID), zap.String("call_sid", in.CallSid))

	if in.CallStatus != "completed" {
		log.Debug("Ignoring non-completed voice status", zap.String("call_status", in.CallStatus))
		return VoicemailPrompt, nil
	}

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return "", err
	}

	phone := model.NormalizePhone(in.From, true)
	resp := &model.Response{
		OrgID:          orgID,
		Method:         model.ChannelVoice,
		Phone:          phone,
		Recording:      in.RecordingURL,
		Transcription:  in.TranscriptionText,
		SID:            in.CallSid,
		DateReceived:   time.Now().UTC(),
		ProviderFields: rawFields(in.Raw),
	}

	if err := s.responses.Save(ctx, resp); err != nil {
		log.Error("Failed to persist voice response", zap.Error(err))
	}

	if contact := s.resolveContact(ctx, orgID, phone); contact != nil {
		s.attachContact(ctx, resp, contact)
	}

	s.enqueueForward(ctx, org, resp)
	return "", nil
}

// HandleStatusCallback updates a delivery log row's provider status by
// (sid, phone). An unknown sid is logged and swallowed; late or bad
// callbacks must never error back to the provider.
func (s *ReconcileService) HandleStatusCallback(ctx context.Context, orgID int64, sid, phone, status string) error {
	phone = model.NormalizePhone(phone, true)
	err := s.logs.UpdateProviderStatus(ctx, sid, phone, status)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			logger.FromContext(ctx).Warn("Status callback for unknown delivery log entry",
				zap.Int64("org_id", orgID),
				zap.String("sid", sid),
				zap.String("status", status),
			)
			return nil
		}
		return err
	}
	return nil
}

// MostRecentMessage attributes a received-at timestamp to the campaign
// window it falls in: the latest message with date_sent <= t, ties broken
// by larger ID. Derived at read time, never stored.
func (s *ReconcileService) MostRecentMessage(ctx context.Context, orgID int64, t time.Time) (*model.Message, error) {
	return s.messages.MostRecentSentBefore(ctx, orgID, t)
}

// resolveContact runs get_or_create on (org, phone), consulting the bloom
// pre-filter first: a probable hit goes lookup-first, a definitive miss
// skips the lookup and inserts directly. False positives and insert races
// fall through to get_or_create; the database stays authoritative.
// Resolution failures return nil; the caller proceeds with an unattached
// response.
func (s *ReconcileService) resolveContact(ctx context.Context, orgID int64, phone string) *model.Contact {
	if phone == "" {
		return nil
	}
	log := logger.FromContext(ctx)

	if s.cache != nil {
		switch s.cache.Check(orgID, phone) {
		case cache.StatusMaybeKnown, cache.StatusMaybeNew:
			contact, err := s.contacts.FindByPhone(ctx, orgID, phone)
			if err == nil {
				s.cache.MarkKnown(orgID, phone)
				return contact
			}
			if !apperrors.IsNotFoundError(err) {
				log.Warn("Failed to look up contact for inbound response",
					zap.Int64("org_id", orgID),
					zap.String("phone", phone),
					zap.Error(err))
				return nil
			}
			// Filter false positive; fall through.
		case cache.StatusUnknown:
			created := &model.Contact{OrgID: orgID, Phone: phone, IsInternational: true}
			err := s.contacts.Save(ctx, created)
			if err == nil {
				s.cache.MarkNew(orgID, phone)
				return created
			}
			if !errors.Is(err, apperrors.ErrDuplicate) {
				log.Warn("Failed to create contact for inbound response",
					zap.Int64("org_id", orgID),
					zap.String("phone", phone),
					zap.Error(err))
				return nil
			}
			// Another instance created the row first; fall through.
		}
	}

	contact, created, err := s.contacts.GetOrCreateByPhone(ctx, orgID, phone)
	if err != nil {
		log.Warn("Failed to resolve contact for inbound response",
			zap.Int64("org_id", orgID),
			zap.String("phone", phone),
			zap.Error(err))
		return nil
	}

	if s.cache != nil {
		if created {
			s.cache.MarkNew(orgID, phone)
		} else {
			s.cache.MarkKnown(orgID, phone)
		}
	}
	return contact
}

// attachContact links the resolved contact to an already-persisted
// response row. Skipped when the row never made it to the database.
func (s *ReconcileService) attachContact(ctx context.Context, resp *model.Response, contact *model.Contact) {
	resp.ContactID = &contact.ID
	if resp.ID == 0 {
		return
	}
	if err := s.responses.AttachContact(ctx, resp.ID, contact.ID); err != nil {
		logger.FromContext(ctx).Warn("Failed to attach contact to response",
			zap.Int64("response_id", resp.ID),
			zap.Int64("contact_id", contact.ID),
			zap.Error(err))
	}
}

// captureEmail lifts the first email-shaped token from body onto a contact
// that has none. Best effort.
func (s *ReconcileService) captureEmail(ctx context.Context, contact *model.Contact, body string) {
	if contact.Email != "" {
		return
	}
	email := model.ExtractEmail(body)
	if email == "" {
		return
	}
	contact.Email = email
	if err := s.contacts.Update(ctx, contact); err != nil {
		logger.FromContext(ctx).Warn("Failed to capture contact email",
			zap.Int64("contact_id", contact.ID), zap.Error(err))
	}
}

// enqueueForward hands the response to the forwarding pool when the org
// has any forward destination configured.
func (s *ReconcileService) enqueueForward(ctx context.Context, org *model.Organization, resp *model.Response) {
	if org.ForwardPhone == "" && org.ForwardEmail == "" {
		return
	}
	if s.forwarder == nil {
		return
	}
	if err := s.forwarder.SubmitTask(ForwardTaskData{Org: *org, Response: *resp}); err != nil {
		logger.FromContext(ctx).Warn("Failed to enqueue forwarding task",
			zap.Int64("org_id", org.ID), zap.Error(err))
	}
}

// rawFields marshals the provider's form fields for the jsonb column.
func rawFields(raw map[string]string) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
