// Package dispatch fans one outbound message out to its resolved recipient
// set. Each recipient gets exactly one delivery log row per attempt; a
// failed recipient never aborts the rest of the batch.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/channel"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/notify"
	"github.com/acounsel/asfour/internal/observer"
	"github.com/acounsel/asfour/internal/progress"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/pkg/logger"
	"github.com/acounsel/asfour/pkg/utils"
)

// Progress stages. Stages 2 through 8 cover the recipient loop; 9 is
// terminal.
const (
	stageLoaded    = 1
	stageResolved  = 2
	stageFanOutEnd = 8
)

// Dispatcher executes one dispatch job end to end.
type Dispatcher struct {
	orgs     storage.OrgRepo
	messages storage.MessageRepo
	logs     storage.MessageLogRepo
	client   channel.Client
	notifier notify.Notifier
	progress progress.Store
	baseURL  string // public root for provider callback URLs
}

// NewDispatcher wires a dispatcher over its collaborators.
func NewDispatcher(
	orgs storage.OrgRepo,
	messages storage.MessageRepo,
	logs storage.MessageLogRepo,
	client channel.Client,
	notifier notify.Notifier,
	progressStore progress.Store,
	baseURL string,
) *Dispatcher {
	return &Dispatcher{
		orgs:     orgs,
		messages: messages,
		logs:     logs,
		client:   client,
		notifier: notifier,
		progress: progressStore,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// ConferenceName returns the shared session name recipients of a conference
// message are dialed into.
func ConferenceName(orgID, messageID int64) string {
	return fmt.Sprintf("org-%d-msg-%d", orgID, messageID)
}

// Dispatch loads the message, stamps date_sent on first dispatch, resolves
// the recipient set once, and sends per recipient. Returns an error only
// when the job itself could not run; per-recipient failures are recorded in
// the delivery log and do not surface here.
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.DispatchJob) error {
	start := utils.Now()
	log := logger.FromContext(ctx).With(
		zap.String("job_id", job.JobID),
		zap.Int64("org_id", job.OrgID),
		zap.Int64("message_id", job.MessageID),
	)

	org, err := d.orgs.FindByID(ctx, job.OrgID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return apperrors.NewFatal(err, "organization %d not found", job.OrgID)
		}
		return apperrors.NewRetryable(err, "failed to load organization %d", job.OrgID)
	}

	msg, err := d.messages.FindByID(ctx, job.OrgID, job.MessageID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return apperrors.NewFatal(err, "message %d not found", job.MessageID)
		}
		return apperrors.NewRetryable(err, "failed to load message %d", job.MessageID)
	}
	d.reportStage(ctx, job.JobID, stageLoaded, 0, "message loaded")

	// Stamp date_sent exactly once. A redelivered job finds it already set
	// and proceeds; "sent" means dispatch was attempted.
	sentAt := utils.Now()
	stamped, err := d.messages.MarkSent(ctx, job.OrgID, job.MessageID, sentAt)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to mark message %d sent", job.MessageID)
	}
	if !stamped {
		log.Info("Message already marked sent, continuing fan-out")
	}

	recipients, err := d.messages.ResolveRecipients(ctx, msg)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to resolve recipients for message %d", job.MessageID)
	}
	total := len(recipients)
	d.reportStage(ctx, job.JobID, stageResolved, total, "recipients resolved")
	log.Info("Dispatching message", zap.Int("recipients", total), zap.String("method", string(msg.Method)))

	if msg.Method == model.ChannelConference && total > 0 {
		d.dialModerator(ctx, org, msg, job)
	}

	for i := range recipients {
		d.sendToRecipient(ctx, org, msg, job, &recipients[i])
		d.reportStage(ctx, job.JobID, fanOutStage(i+1, total), total, "sending")
	}

	d.reportStage(ctx, job.JobID, progress.FinalStage, total, "complete")
	observer.ObserveDispatchDuration(job.OrgID, time.Since(start))
	log.Info("Dispatch complete", zap.Int("recipients", total))
	return nil
}

// fanOutStage maps recipient progress onto stages 2..8.
func fanOutStage(done, total int) int {
	if total == 0 {
		return stageFanOutEnd
	}
	return stageResolved + done*(stageFanOutEnd-stageResolved)/total
}

// sendToRecipient performs one send and writes exactly one delivery log
// row. Failures are captured on the row, never returned.
func (d *Dispatcher) sendToRecipient(ctx context.Context, org *model.Organization, msg *model.Message, job *model.DispatchJob, contact *model.Contact) {
	entry := &model.MessageLog{
		OrgID:     org.ID,
		MessageID: msg.ID,
		ContactID: &contact.ID,
		Phone:     contact.Phone,
		SenderID:  job.SenderID,
	}

	sid, err := d.send(ctx, org, msg, contact)
	if err != nil {
		entry.Status = model.LogStatusFailed
		entry.Error = err.Error()
		observer.IncSend(org.ID, string(msg.Method), model.LogStatusFailed)
		logger.FromContext(ctx).Warn("Send failed",
			zap.Int64("contact_id", contact.ID),
			zap.String("phone", contact.Phone),
			zap.Error(err),
		)
	} else {
		entry.Status = model.LogStatusSuccess
		entry.SID = sid
		observer.IncSend(org.ID, string(msg.Method), model.LogStatusSuccess)
	}

	if err := d.logs.Save(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("Failed to write delivery log entry",
			zap.Int64("contact_id", contact.ID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// send builds the channel-specific payload and invokes the provider.
func (d *Dispatcher) send(ctx context.Context, org *model.Organization, msg *model.Message, contact *model.Contact) (string, error) {
	if msg.Method == model.ChannelEmail {
		return d.sendEmail(ctx, msg, contact)
	}

	kind, ok := channel.KindForChannel(msg.Method)
	if !ok {
		return "", fmt.Errorf("channel %q has no provider mapping: %w", msg.Method, apperrors.ErrBadRequest)
	}

	creds := channel.Credentials{AccountSID: org.AccountSID, AuthToken: org.AuthToken}

	if kind == channel.KindCall && msg.Method == model.ChannelConference {
		return d.client.CreateConferenceParticipant(ctx, creds, ConferenceName(org.ID, msg.ID), org.Phone, contact.Phone)
	}

	req := channel.SendRequest{
		Kind: kind,
		From: org.Phone,
		To:   contact.Phone,
	}
	switch kind {
	case channel.KindSMS, channel.KindWhatsApp:
		req.Body = msg.Body
		req.MediaURL = msg.AttachmentURL
		req.StatusCallback = d.statusCallbackURL(org.ID)
		if kind == channel.KindWhatsApp {
			req.From = channel.WhatsAppAddress(org.Phone)
			req.To = channel.WhatsAppAddress(contact.Phone)
		}
	case channel.KindVoice:
		req.CallbackURL = d.voiceCallURL(org.ID, msg.ID)
		req.StatusCallback = d.statusCallbackURL(org.ID)
	}

	return d.client.Send(ctx, creds, req)
}

// sendEmail delivers an email-channel message through the notifier. A
// contact without an email address is a per-recipient failure.
func (d *Dispatcher) sendEmail(ctx context.Context, msg *model.Message, contact *model.Contact) (string, error) {
	if contact.Email == "" {
		return "", fmt.Errorf("contact %d has no email address: %w", contact.ID, apperrors.ErrBadRequest)
	}
	if err := d.notifier.SendEmail(ctx, contact.Email, "New message", msg.Body); err != nil {
		return "", err
	}
	// Email sends have no provider sid.
	return "", nil
}

// dialModerator places the moderator leg of a conference message. The
// callback URL serves markup dialing into the shared session.
func (d *Dispatcher) dialModerator(ctx context.Context, org *model.Organization, msg *model.Message, job *model.DispatchJob) {
	if org.ForwardPhone == "" {
		logger.FromContext(ctx).Warn("Conference message without a moderator phone, skipping moderator leg",
			zap.Int64("message_id", msg.ID))
		return
	}

	creds := channel.Credentials{AccountSID: org.AccountSID, AuthToken: org.AuthToken}
	sid, err := d.client.Send(ctx, creds, channel.SendRequest{
		Kind:        channel.KindCall,
		From:        org.Phone,
		To:          org.ForwardPhone,
		CallbackURL: d.voiceCallURL(org.ID, msg.ID),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to dial conference moderator",
			zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}

	entry := &model.MessageLog{
		OrgID:     org.ID,
		MessageID: msg.ID,
		Phone:     org.ForwardPhone,
		SID:       sid,
		Status:    model.LogStatusSuccess,
		SenderID:  job.SenderID,
	}
	if err := d.logs.Save(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("Failed to log moderator leg", zap.Error(err))
	}
}

func (d *Dispatcher) statusCallbackURL(orgID int64) string {
	return fmt.Sprintf("%s/webhooks/%d/status", d.baseURL, orgID)
}

func (d *Dispatcher) voiceCallURL(orgID, messageID int64) string {
	return fmt.Sprintf("%s/webhooks/%d/voice-call/%d", d.baseURL, orgID, messageID)
}

// reportStage records progress, best effort.
func (d *Dispatcher) reportStage(ctx context.Context, jobID string, stage, total int, message string) {
	if d.progress == nil {
		return
	}
	if err := d.progress.SetStage(ctx, jobID, stage, total, message); err != nil {
		logger.FromContext(ctx).Debug("Failed to report job progress",
			zap.String("job_id", jobID), zap.Int("stage", stage), zap.Error(err))
	}
}
