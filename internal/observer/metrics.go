package observer

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for dispatch job metrics
	dispatchJobLabels = []string{"org_id"}
	// Labels for per-recipient send metrics
	sendLabels = []string{"org_id", "channel", "status"}
	// Labels for webhook handling metrics
	webhookLabels = []string{"org_id", "endpoint", "outcome"}

	// Dispatch job counters
	DispatchJobsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_dispatch_jobs_received_total",
			Help: "Total number of dispatch jobs received from the job stream.",
		},
		dispatchJobLabels,
	)
	DispatchJobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_dispatch_jobs_completed_total",
			Help: "Total number of dispatch jobs fully processed and acknowledged.",
		},
		dispatchJobLabels,
	)
	DispatchJobsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_dispatch_jobs_failed_total",
			Help: "Total number of dispatch jobs that failed processing (resulting in NAK or exhaustion).",
		},
		dispatchJobLabels,
	)
	DispatchJobsExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_dispatch_jobs_exhausted_total",
			Help: "Total number of dispatch jobs dropped after exceeding max redeliveries.",
		},
		dispatchJobLabels,
	)

	// Per-recipient send counter
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_sends_total",
			Help: "Total number of per-recipient send attempts, labeled by channel and outcome.",
		},
		sendLabels,
	)

	// Histogram for dispatch fan-out duration
	DispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asfour_dispatch_duration_seconds",
			Help:    "Histogram of full dispatch fan-out durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		dispatchJobLabels,
	)

	// Webhook counter
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_webhooks_total",
			Help: "Total number of inbound webhook requests, labeled by endpoint and outcome.",
		},
		webhookLabels,
	)
)

// Metrics related to response forwarding
var (
	forwardingLabels       = []string{"org_id"}
	forwardingMediumLabels = []string{"org_id", "medium", "status"}

	forwardingTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_forwarding_tasks_submitted_total",
			Help: "Total number of forwarding tasks submitted to the worker pool.",
		},
		forwardingLabels,
	)
	forwardingTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_forwarding_tasks_processed_total",
			Help: "Total number of forwarding tasks processed, labeled by medium and final status.",
		},
		forwardingMediumLabels,
	)
	forwardingProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asfour_forwarding_processing_duration_seconds",
			Help:    "Histogram of processing durations for forwarding tasks.",
			Buckets: prometheus.DefBuckets,
		},
		forwardingLabels,
	)
	forwardingQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asfour_forwarding_queue_length",
		Help: "Approximate number of tasks waiting in the forwarding worker pool queue.",
	})
	forwardingWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asfour_forwarding_workers_active",
		Help: "Current number of active workers in the forwarding pool.",
	})
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asfour_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Contact cache metrics
var (
	cacheCheckLabels = []string{"org_id", "filter", "result"}

	cacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asfour_contact_cache_checks_total",
			Help: "Total number of contact bloom filter checks, labeled by filter and result.",
		},
		cacheCheckLabels,
	)
)

// InitMetrics initializes the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// OrgLabel renders an organization ID as a metric label value.
func OrgLabel(orgID int64) string {
	if orgID <= 0 {
		return "unknown"
	}
	return strconv.FormatInt(orgID, 10)
}

// IncDispatchJobReceived increments the jobs received counter.
func IncDispatchJobReceived(orgID int64) {
	if !metricsEnabled {
		return
	}
	DispatchJobsReceivedTotal.WithLabelValues(OrgLabel(orgID)).Inc()
}

// IncDispatchJobCompleted increments the jobs completed counter.
func IncDispatchJobCompleted(orgID int64) {
	if !metricsEnabled {
		return
	}
	DispatchJobsCompletedTotal.WithLabelValues(OrgLabel(orgID)).Inc()
}

// IncDispatchJobFailed increments the jobs failed counter.
func IncDispatchJobFailed(orgID int64) {
	if !metricsEnabled {
		return
	}
	DispatchJobsFailedTotal.WithLabelValues(OrgLabel(orgID)).Inc()
}

// IncDispatchJobExhausted increments the counter for jobs dropped after max
// redeliveries.
func IncDispatchJobExhausted(orgID int64) {
	if !metricsEnabled {
		return
	}
	DispatchJobsExhaustedTotal.WithLabelValues(OrgLabel(orgID)).Inc()
}

// IncSend increments the per-recipient send counter.
func IncSend(orgID int64, channel, status string) {
	if !metricsEnabled {
		return
	}
	SendsTotal.WithLabelValues(OrgLabel(orgID), channel, status).Inc()
}

// ObserveDispatchDuration records a full fan-out duration.
func ObserveDispatchDuration(orgID int64, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	DispatchDurationSeconds.WithLabelValues(OrgLabel(orgID)).Observe(duration.Seconds())
}

// IncWebhook increments the webhook request counter.
func IncWebhook(orgID int64, endpoint, outcome string) {
	if !metricsEnabled {
		return
	}
	WebhooksTotal.WithLabelValues(OrgLabel(orgID), endpoint, outcome).Inc()
}

// --- Forwarding Metric Helpers ---

// IncForwardingTasksSubmitted increments the counter for submitted forwarding tasks.
func IncForwardingTasksSubmitted(orgID int64) {
	if !metricsEnabled {
		return
	}
	forwardingTasksSubmittedTotal.WithLabelValues(OrgLabel(orgID)).Inc()
}

// IncForwardingTasksProcessed increments the counter for processed forwarding
// tasks by medium and status.
func IncForwardingTasksProcessed(orgID int64, medium, status string) {
	if !metricsEnabled {
		return
	}
	forwardingTasksProcessedTotal.WithLabelValues(OrgLabel(orgID), medium, status).Inc()
}

// ObserveForwardingProcessingDuration records the processing time for a forwarding task.
func ObserveForwardingProcessingDuration(orgID int64, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	forwardingProcessingDurationSeconds.WithLabelValues(OrgLabel(orgID)).Observe(duration.Seconds())
}

// SetForwardingQueueLength sets the current forwarding queue length.
func SetForwardingQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	forwardingQueueLength.Set(float64(length))
}

// SetForwardingWorkersActive sets the current number of active forwarding workers.
func SetForwardingWorkersActive(count int) {
	if !metricsEnabled {
		return
	}
	forwardingWorkersActive.Set(float64(count))
}

// --- Database Metric Helpers ---

// ObserveDbOperationDuration records the duration for a database operation,
// retries included.
func ObserveDbOperationDuration(operation string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// --- Cache Metric Helpers ---

// IncCacheCheck increments the contact cache check counter.
func IncCacheCheck(orgID int64, filter, result string) {
	if !metricsEnabled {
		return
	}
	cacheChecksTotal.WithLabelValues(OrgLabel(orgID), filter, result).Inc()
}

// SanitizeErrorType maps specific errors to a coarse category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "provider"):
		return "provider"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
