package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/pkg/logger"
)

// subjectPrefix is the dispatch subject root; jobs publish on
// "<prefix>.<orgID>" so per-tenant traffic stays inspectable.
const subjectPrefix = "v1.dispatch"

// DispatchPublisher enqueues dispatch jobs on the job stream.
type DispatchPublisher struct {
	client ClientInterface
}

// NewDispatchPublisher creates a publisher over an established client.
func NewDispatchPublisher(client ClientInterface) *DispatchPublisher {
	return &DispatchPublisher{client: client}
}

// Enqueue publishes one dispatch job. The call returns once the stream has
// accepted the message; actual fan-out happens in the consumer.
func (p *DispatchPublisher) Enqueue(ctx context.Context, job *model.DispatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode dispatch job: %w", err)
	}

	subject := model.DispatchSubject(subjectPrefix, job.OrgID)
	headers := map[string]string{
		"job_id": job.JobID,
		"org_id": strconv.FormatInt(job.OrgID, 10),
	}

	if err := p.client.Publish(subject, payload, headers); err != nil {
		return fmt.Errorf("failed to enqueue dispatch job %s: %v: %w", job.JobID, err, apperrors.ErrQueue)
	}

	logger.FromContext(ctx).Info("Enqueued dispatch job",
		zap.String("job_id", job.JobID),
		zap.Int64("org_id", job.OrgID),
		zap.Int64("message_id", job.MessageID),
		zap.String("subject", subject),
	)
	return nil
}
