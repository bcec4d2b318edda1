package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer abstracts the asynq client's enqueue operation for testability.
// Production code uses *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RetryConfig carries the per-job retry and retention options the producer
// attaches at enqueue time. The backoff curve itself lives on the worker
// server (RetryDelay); the broker only needs the attempt ceiling.
type RetryConfig struct {
	// MaxAttempts is the total attempt ceiling (first run + retries).
	MaxAttempts int
	// CompletedRetention is how long a completed job stays inspectable.
	CompletedRetention time.Duration
}

// Producer enqueues report jobs into the clinic-reports lane.
//
// Job IDs embed the enqueue timestamp ("report-{orgID}-{unixMilli}"), which
// makes every call unique but does not prevent two near-simultaneous
// fan-outs from double-queuing the same organization. That window is
// tolerated: the report handler's side effects are re-sending an email and
// re-stamping a timestamp.
type Producer struct {
	client Enqueuer
	retry  RetryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewProducer creates a Producer over the given enqueuer.
func NewProducer(client Enqueuer, retry RetryConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		client: client,
		retry:  retry,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the producer's clock. Intended for tests that need
// deterministic job IDs.
func (p *Producer) WithClock(now func() time.Time) *Producer {
	p.now = now
	return p
}

// jobOptions are the default options attached to every report job.
func (p *Producer) jobOptions(jobID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(LaneReports),
		asynq.TaskID(jobID),
		// asynq counts retries after the first attempt.
		asynq.MaxRetry(p.retry.MaxAttempts - 1),
		asynq.Retention(p.retry.CompletedRetention),
	}
}

// AddReportJob enqueues a single-organization report job. Enqueue failures
// (broker unreachable, duplicate job ID) propagate to the caller; the
// producer itself has no retry.
func (p *Producer) AddReportJob(ctx context.Context, data GenerateReportPayload) (JobHandle, error) {
	task, err := NewGenerateReportTask(data)
	if err != nil {
		return JobHandle{}, err
	}

	jobID := fmt.Sprintf("report-%s-%d", data.OrganizationID, p.now().UnixMilli())
	info, err := p.client.EnqueueContext(ctx, task, p.jobOptions(jobID)...)
	if err != nil {
		return JobHandle{}, fmt.Errorf("queue: enqueuing report job for org %s: %w", data.OrganizationID, err)
	}

	p.logger.InfoContext(ctx, "report job enqueued",
		"job_id", info.ID,
		"lane", info.Queue,
		"organization_id", data.OrganizationID,
		"organization_name", data.OrganizationName,
		"period_days", data.PeriodDays,
		"admin_recipients", len(data.AdminEmails),
	)

	return JobHandle{ID: info.ID, Lane: info.Queue}, nil
}

// ScheduleAllReports enqueues the fan-out trigger job.
func (p *Producer) ScheduleAllReports(ctx context.Context) (JobHandle, error) {
	now := p.now()
	task, err := NewScheduleAllTask(now)
	if err != nil {
		return JobHandle{}, err
	}

	jobID := fmt.Sprintf("schedule-all-%d", now.UnixMilli())
	info, err := p.client.EnqueueContext(ctx, task, p.jobOptions(jobID)...)
	if err != nil {
		return JobHandle{}, fmt.Errorf("queue: enqueuing schedule-all job: %w", err)
	}

	p.logger.InfoContext(ctx, "schedule-all job enqueued",
		"job_id", info.ID,
		"lane", info.Queue,
	)

	return JobHandle{ID: info.ID, Lane: info.Queue}, nil
}
