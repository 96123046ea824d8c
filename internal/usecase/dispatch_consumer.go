package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/config"
	"github.com/acounsel/asfour/internal/dispatch"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/observer"
	"github.com/acounsel/asfour/internal/queue"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/internal/tenant"
	"github.com/acounsel/asfour/pkg/logger"
)

// AckNakAction represents the decision made after processing a job
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Job processed successfully, ACK it
	ActionNakDelay                     // Retryable error, NAK with backoff delay
	ActionExhaust                      // Max deliveries reached or fatal error: record and TERM
)

// DispatchConsumer consumes dispatch jobs from the job stream and runs the
// dispatcher. At-least-once: a crashed worker redelivers the job; the
// dispatcher tolerates the duplicate (fresh delivery log rows).
type DispatchConsumer struct {
	client     queue.ClientInterface
	dispatcher *dispatch.Dispatcher
	exhausted  storage.ExhaustedJobRepo
	cfg        config.ConsumerNatsConfig
	sub        *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewDispatchConsumer creates a consumer for the dispatch job stream.
func NewDispatchConsumer(
	client queue.ClientInterface,
	dispatcher *dispatch.Dispatcher,
	exhausted storage.ExhaustedJobRepo,
	cfg config.ConsumerNatsConfig,
) *DispatchConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &DispatchConsumer{
		client:     client,
		dispatcher: dispatcher,
		exhausted:  exhausted,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Setup ensures the stream and durable consumer exist.
func (c *DispatchConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up DispatchConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	maxAgeRetention := time.Duration(c.cfg.MaxAge*24) * time.Hour
	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  c.cfg.SubjectList,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAgeRetention,
	}
	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		return fmt.Errorf("failed to setup dispatch stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: c.cfg.SubjectList,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        5 * time.Minute, // fan-out over many recipients is slow
		MaxAckPending:  100,
		ReplayPolicy:   nats.ReplayInstantPolicy,
	}
	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		return fmt.Errorf("failed to setup dispatch consumer '%s': %w", c.cfg.Consumer, err)
	}

	log.Info("DispatchConsumer setup complete")
	return nil
}

// Start subscribes the queue group to the dispatch subjects.
func (c *DispatchConsumer) Start() error {
	log := logger.FromContext(c.ctx)

	subject := subscribeSubject(c.cfg.SubjectList)
	sub, err := c.client.Subscribe(subject, c.cfg.Consumer, c.cfg.QueueGroup, c.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe dispatch consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("DispatchConsumer subscribed", zap.String("subject", subject), zap.String("group", c.cfg.QueueGroup))
	return nil
}

// Stop drains the subscription and cancels in-flight work.
func (c *DispatchConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping DispatchConsumer...")
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining dispatch subscription", zap.Error(err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("DispatchConsumer stopped")
}

func subscribeSubject(subjects []string) string {
	if len(subjects) > 0 {
		return subjects[0]
	}
	return "v1.dispatch.>"
}

// determineAckNakAction decides the fate of a job based on the processing
// result and delivery metadata.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {

	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionExhaust, 0
	}

	attempt := numDelivered
	delay = nakBaseDelay
	if attempt > 1 {
		delay = nakBaseDelay * (1 << (attempt - 1))
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// handleMessage processes one job delivery.
func (c *DispatchConsumer) handleMessage(msg *nats.Msg) {
	startTime := time.Now()
	log := logger.FromContext(c.ctx).With(zap.String("subject", msg.Subject))

	defer func() {
		if r := recover(); r != nil {
			log.Error("[panic] Recovered from panic in dispatch handler",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	metadata, err := msg.Metadata()
	if err != nil {
		log.Error("Failed to read message metadata", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
		return
	}

	var job model.DispatchJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		// Malformed payloads never get better on redelivery.
		log.Error("Failed to decode dispatch job, terminating message", zap.Error(err))
		c.recordExhausted(msg, &job, metadata, fmt.Errorf("malformed job payload: %w", err))
		if termErr := msg.Term(); termErr != nil {
			log.Error("Failed to TERM malformed message", zap.Error(termErr))
		}
		return
	}

	observer.IncDispatchJobReceived(job.OrgID)

	jobCtx := tenant.WithOrgID(c.ctx, job.OrgID)
	jobCtx = logger.WithLogger(jobCtx, log.With(
		zap.String("job_id", job.JobID),
		zap.Int64("org_id", job.OrgID),
		zap.Uint64("num_delivered", metadata.NumDelivered),
	))

	processingErr := c.dispatcher.Dispatch(jobCtx, &job)

	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)
	enhancedLog := logger.FromContext(jobCtx)

	switch action {
	case ActionAck:
		enhancedLog.Info("Dispatch job processed", zap.Duration("duration", time.Since(startTime)))
		observer.IncDispatchJobCompleted(job.OrgID)
		if ackErr := msg.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		enhancedLog.Info("NAKing dispatch job for redelivery",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
		)
		observer.IncDispatchJobFailed(job.OrgID)
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			enhancedLog.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionExhaust:
		reason := "max delivery attempts reached"
		if !apperrors.IsRetryable(processingErr) {
			reason = "fatal error encountered"
		}
		enhancedLog.Warn("Dispatch job exhausted: "+reason,
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
		)
		observer.IncDispatchJobFailed(job.OrgID)
		observer.IncDispatchJobExhausted(job.OrgID)
		c.recordExhausted(msg, &job, metadata, processingErr)
		if termErr := msg.Term(); termErr != nil {
			enhancedLog.Error("Failed to TERM exhausted message", zap.Error(termErr))
		}
	}
}

// recordExhausted persists a job that ran out of redeliveries so an
// operator can inspect and replay it.
func (c *DispatchConsumer) recordExhausted(msg *nats.Msg, job *model.DispatchJob, metadata *nats.MsgMetadata, processingErr error) {
	errText := ""
	if processingErr != nil {
		errText = processingErr.Error()
	}
	deliveries := 0
	if metadata != nil {
		deliveries = int(metadata.NumDelivered)
	}

	record := &model.ExhaustedJob{
		OrgID:      job.OrgID,
		Subject:    msg.Subject,
		Payload:    datatypes.JSON(msg.Data),
		LastError:  errText,
		Deliveries: deliveries,
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.exhausted.Save(saveCtx, record); err != nil {
		logger.FromContext(c.ctx).Error("Failed to record exhausted dispatch job",
			zap.String("job_id", job.JobID),
			zap.Error(err),
		)
	}
}
