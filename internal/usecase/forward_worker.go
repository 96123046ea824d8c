package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/channel"
	"github.com/acounsel/asfour/internal/config"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/notify"
	"github.com/acounsel/asfour/internal/observer"
)

// ForwardTaskData holds everything a forwarding task needs; the webhook
// request context is deliberately not carried, the task outlives it.
type ForwardTaskData struct {
	Org      model.Organization
	Response model.Response
}

// IForwardWorker defines the interface for the forwarding worker pool.
type IForwardWorker interface {
	SubmitTask(taskData ForwardTaskData) error
	Stop()
}

// ForwardWorker relays inbound responses to the organization's forward
// phone and forward email off the webhook path. Both relays fire
// independently; a failure is logged and dropped.
type ForwardWorker struct {
	pool       *ants.PoolWithFunc
	client     channel.Client
	notifier   notify.Notifier
	cfg        config.ForwardingWorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure ForwardWorker implements IForwardWorker
var _ IForwardWorker = (*ForwardWorker)(nil)

// NewForwardWorker creates and initializes the forwarding worker pool.
func NewForwardWorker(
	cfg config.ForwardingWorkerPoolConfig,
	client channel.Client,
	notifier notify.Notifier,
	baseLogger *zap.Logger,
) (*ForwardWorker, error) {
	worker := &ForwardWorker{
		client:     client,
		notifier:   notifier,
		cfg:        cfg,
		baseLogger: baseLogger.Named("forward_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(ForwardTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processForwardTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in forward worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forwarding worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Forwarding worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
	)
	return worker, nil
}

// SubmitTask queues one response for forwarding.
func (w *ForwardWorker) SubmitTask(taskData ForwardTaskData) error {
	observer.IncForwardingTasksSubmitted(taskData.Org.ID)
	observer.SetForwardingQueueLength(w.pool.Waiting())

	if err := w.pool.Invoke(taskData); err != nil {
		w.baseLogger.Warn("Failed to submit forwarding task to pool",
			zap.Int64("org_id", taskData.Org.ID),
			zap.Int64("response_id", taskData.Response.ID),
			zap.Error(err),
		)
		observer.IncForwardingTasksProcessed(taskData.Org.ID, "pool", "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("forwarding pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke forwarding task: %w", err)
	}
	return nil
}

// processForwardTask runs one relay. The task context is fresh; webhook
// deadlines must not cancel forwarding already in flight.
func (w *ForwardWorker) processForwardTask(taskData ForwardTaskData) {
	start := time.Now()
	org := &taskData.Org
	resp := &taskData.Response
	log := w.baseLogger.With(
		zap.Int64("org_id", org.ID),
		zap.Int64("response_id", resp.ID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	observer.SetForwardingWorkersActive(w.pool.Running())

	if org.ForwardPhone != "" {
		creds := channel.Credentials{AccountSID: org.AccountSID, AuthToken: org.AuthToken}
		_, err := w.client.Send(ctx, creds, channel.SendRequest{
			Kind: channel.KindSMS,
			From: org.Phone,
			To:   org.ForwardPhone,
			Body: resp.ForwardSummary(),
		})
		if err != nil {
			log.Warn("Forward-by-phone failed", zap.Error(err))
			observer.IncForwardingTasksProcessed(org.ID, "phone", "failed")
		} else {
			observer.IncForwardingTasksProcessed(org.ID, "phone", "success")
		}
	}

	if org.ForwardEmail != "" {
		subject := fmt.Sprintf("New response for %s", org.Name)
		if err := w.notifier.SendHTMLEmail(ctx, org.ForwardEmail, subject, forwardEmailHTML(resp)); err != nil {
			log.Warn("Forward-by-email failed", zap.Error(err))
			observer.IncForwardingTasksProcessed(org.ID, "email", "failed")
		} else {
			observer.IncForwardingTasksProcessed(org.ID, "email", "success")
		}
	}

	observer.ObserveForwardingProcessingDuration(org.ID, time.Since(start))
}

// forwardEmailHTML renders the relay email. Voice responses link the
// recording under the summary line.
func forwardEmailHTML(resp *model.Response) string {
	var b strings.Builder
	b.WriteString("<p>" + html.EscapeString(resp.ForwardSummary()) + "</p>")
	if resp.Recording != "" {
		b.WriteString(`<p>Recording: <a href="` + html.EscapeString(resp.Recording) + `">` + html.EscapeString(resp.Recording) + "</a></p>")
	}
	if resp.Transcription != "" {
		b.WriteString("<p>Transcription: " + html.EscapeString(resp.Transcription) + "</p>")
	}
	return b.String()
}

// Stop gracefully shuts down the pool, waiting for in-flight tasks.
func (w *ForwardWorker) Stop() {
	w.baseLogger.Info("Stopping forwarding worker pool...")
	w.pool.Release()
	w.baseLogger.Info("Forwarding worker pool stopped")
}
