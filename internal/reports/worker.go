package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"clinicpulse/internal/mail"
	"clinicpulse/internal/metrics"
	"clinicpulse/internal/queue"
	"clinicpulse/internal/types"
)

// OrgStore defines the organization reads and the single timestamp write the
// worker needs. Implemented by db.OrganizationRepository.
type OrgStore interface {
	ListReportOrgs(ctx context.Context) ([]types.ReportOrg, error)
	SetLastReportGeneratedAt(ctx context.Context, orgID string, at time.Time) error
}

// MemberStore resolves an organization's admin recipients.
// Implemented by db.MemberRepository.
type MemberStore interface {
	ListAdminEmails(ctx context.Context, orgID string) ([]string, error)
}

// ReportEnqueuer is the narrow producer surface the fan-out handler uses.
// Implemented by queue.Producer.
type ReportEnqueuer interface {
	AddReportJob(ctx context.Context, data queue.GenerateReportPayload) (queue.JobHandle, error)
}

// EmailSender transmits one pre-rendered email and returns the provider's
// message identifier. Implemented by external.SESClient and
// external.SendGridClient.
type EmailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// EmailLogStore appends audit rows for each dispatch attempt.
// Implemented by db.EmailLogRepository.
type EmailLogStore interface {
	Append(ctx context.Context, entry *types.EmailLogEntry) error
}

// ReportRenderer renders the report email content.
// Implemented by mail.Renderer.
type ReportRenderer interface {
	RenderReport(orgName string, stats types.ReportPeriodStats) (mail.Rendered, error)
}

// scheduleAllResult summarizes one fan-out execution. Written to the job's
// result slot when the broker retains completed jobs.
type scheduleAllResult struct {
	TotalOrganizations int `json:"total_organizations"`
	DueOrganizations   int `json:"due_organizations"`
	JobsEnqueued       int `json:"jobs_enqueued"`
	Skipped            int `json:"skipped"`
	Failures           int `json:"failures"`
}

// reportJobResult summarizes one single-organization report execution.
type reportJobResult struct {
	OrganizationID string                      `json:"organization_id"`
	EmailsSent     int                         `json:"emails_sent"`
	EmailsFailed   int                         `json:"emails_failed"`
	Recipients     []types.EmailDispatchResult `json:"recipients"`
}

// Worker processes the two report task variants. HandleScheduleAll fans out
// one generate-report job per due organization; HandleGenerateReport collects
// the organization's period statistics and emails the rendered report to its
// admins.
type Worker struct {
	orgs         OrgStore
	members      MemberStore
	stats        StatsStore
	producer     ReportEnqueuer
	sender       EmailSender
	emailLog     EmailLogStore
	renderer     ReportRenderer
	sink         metrics.Sink
	from         types.EmailAddress
	intervalDays int
	logger       *slog.Logger
	now          func() time.Time
}

// WorkerConfig carries the Worker's collaborators and tuning.
type WorkerConfig struct {
	Orgs     OrgStore
	Members  MemberStore
	Stats    StatsStore
	Producer ReportEnqueuer
	Sender   EmailSender
	EmailLog EmailLogStore
	Renderer ReportRenderer
	Sink     metrics.Sink
	// From is the sender identity stamped on every report email.
	From types.EmailAddress
	// IntervalDays is the eligibility interval; zero falls back to
	// DefaultIntervalDays.
	IntervalDays int
	Logger       *slog.Logger
}

// NewWorker creates a report Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.IntervalDays <= 0 {
		cfg.IntervalDays = DefaultIntervalDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = metrics.NewNoop()
	}
	return &Worker{
		orgs:         cfg.Orgs,
		members:      cfg.Members,
		stats:        cfg.Stats,
		producer:     cfg.Producer,
		sender:       cfg.Sender,
		emailLog:     cfg.EmailLog,
		renderer:     cfg.Renderer,
		sink:         cfg.Sink,
		from:         cfg.From,
		intervalDays: cfg.IntervalDays,
		logger:       cfg.Logger,
	}
}

// WithClock overrides the worker's clock for deterministic tests.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

func (w *Worker) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now().UTC()
}

// Register installs both task handlers on the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TypeScheduleAll, w.HandleScheduleAll)
	mux.HandleFunc(queue.TypeGenerateReport, w.HandleGenerateReport)
}

// progressCheckpoints are the organization counts at which the fan-out logs
// a progress line, plus every following multiple of the last checkpoint.
var progressCheckpoints = []int{10, 50, 100}

// HandleScheduleAll evaluates every organization's report eligibility and
// enqueues a generate-report job per due organization.
//
// Per-organization failures (admin lookup errors, enqueue errors) are logged
// and skipped so one broken organization cannot stall the rest. The handler
// itself fails only when listing organizations fails, or when at least one
// organization was due and every enqueue failed, which usually means the
// broker is down and a retry is worthwhile.
func (w *Worker) HandleScheduleAll(ctx context.Context, task *asynq.Task) error {
	var payload queue.ScheduleAllPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeScheduleAll, metrics.ResultFailure)
		return fmt.Errorf("reports: unmarshaling schedule-all payload: %w: %w", err, asynq.SkipRetry)
	}

	now := w.clock()
	jobID, _ := asynq.GetTaskID(ctx)
	logger := w.logger.With("job_id", jobID, "task_type", queue.TypeScheduleAll)

	logger.InfoContext(ctx, "starting report fan-out", "triggered_at", payload.TriggeredAt)

	orgs, err := w.orgs.ListReportOrgs(ctx)
	if err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeScheduleAll, metrics.ResultFailure)
		return fmt.Errorf("reports: listing organizations for fan-out: %w", err)
	}

	result := scheduleAllResult{TotalOrganizations: len(orgs)}
	for i, org := range orgs {
		w.logProgress(ctx, logger, i+1, len(orgs))

		if !IsDue(org, now, w.intervalDays) {
			continue
		}
		result.DueOrganizations++

		admins, err := w.members.ListAdminEmails(ctx, org.ID)
		if err != nil {
			result.Failures++
			logger.ErrorContext(ctx, "failed to resolve admin recipients, skipping organization",
				"organization_id", org.ID,
				"error", err,
			)
			continue
		}
		if len(admins) == 0 {
			result.Skipped++
			logger.WarnContext(ctx, "organization has no admin recipients, skipping",
				"organization_id", org.ID,
				"organization_name", org.Name,
			)
			continue
		}

		_, err = w.producer.AddReportJob(ctx, queue.GenerateReportPayload{
			OrganizationID:   org.ID,
			OrganizationName: org.Name,
			AdminEmails:      admins,
			PeriodDays:       w.intervalDays,
		})
		if err != nil {
			result.Failures++
			logger.ErrorContext(ctx, "failed to enqueue report job",
				"organization_id", org.ID,
				"error", err,
			)
			continue
		}
		result.JobsEnqueued++
	}

	logger.InfoContext(ctx, "report fan-out complete",
		"total_organizations", result.TotalOrganizations,
		"due_organizations", result.DueOrganizations,
		"jobs_enqueued", result.JobsEnqueued,
		"skipped", result.Skipped,
		"failures", result.Failures,
	)

	if result.DueOrganizations > 0 && result.JobsEnqueued == 0 && result.Failures > 0 {
		w.sink.RecordJobOutcome(ctx, queue.TypeScheduleAll, metrics.ResultFailure)
		return fmt.Errorf("reports: fan-out enqueued no jobs for %d due organizations", result.DueOrganizations)
	}

	w.writeResult(ctx, task, result, logger)
	w.sink.RecordJobOutcome(ctx, queue.TypeScheduleAll, metrics.ResultSuccess)
	return nil
}

// logProgress emits a progress line at fixed checkpoints so long fan-outs
// remain observable without logging every organization.
func (w *Worker) logProgress(ctx context.Context, logger *slog.Logger, processed, total int) {
	last := progressCheckpoints[len(progressCheckpoints)-1]
	hit := processed%last == 0
	for _, cp := range progressCheckpoints {
		if processed == cp {
			hit = true
			break
		}
	}
	if hit {
		logger.InfoContext(ctx, "fan-out progress", "processed", processed, "total", total)
	}
}

// HandleGenerateReport generates one organization's report and emails it to
// the admin recipients resolved at execution time.
//
// Recipient failures are isolated: one failed send never prevents the
// remaining sends, and the organization's last-report timestamp is stamped
// after all recipients were attempted regardless of how many succeeded. A
// timestamp write failure fails the job so the broker retries it.
func (w *Worker) HandleGenerateReport(ctx context.Context, task *asynq.Task) error {
	var payload queue.GenerateReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
		return fmt.Errorf("reports: unmarshaling report payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.OrganizationID == "" {
		w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
		return fmt.Errorf("reports: report payload missing organization id: %w", asynq.SkipRetry)
	}

	periodDays := payload.PeriodDays
	if periodDays <= 0 {
		periodDays = w.intervalDays
	}

	now := w.clock()
	jobID, _ := asynq.GetTaskID(ctx)
	attempt, _ := asynq.GetRetryCount(ctx)
	logger := w.logger.With(
		"job_id", jobID,
		"task_type", queue.TypeGenerateReport,
		"organization_id", payload.OrganizationID,
		"attempt", attempt+1,
	)

	logger.InfoContext(ctx, "generating report", "period_days", periodDays)

	stats, err := CollectPeriodStats(ctx, w.stats, payload.OrganizationID, periodDays, now)
	if err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
		return err
	}

	// Recipients are re-resolved at send time; the payload snapshot can be
	// stale by the time a retried job runs.
	admins, err := w.members.ListAdminEmails(ctx, payload.OrganizationID)
	if err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
		return fmt.Errorf("reports: resolving admin recipients for org %s: %w", payload.OrganizationID, err)
	}

	result := reportJobResult{OrganizationID: payload.OrganizationID}

	if len(admins) == 0 {
		logger.WarnContext(ctx, "no admin recipients at send time")
	} else {
		rendered, err := w.renderer.RenderReport(payload.OrganizationName, *stats)
		if err != nil {
			w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
			return err
		}

		for _, email := range admins {
			dispatch := w.sendReport(ctx, logger, payload.OrganizationID, email, rendered, jobID)
			result.Recipients = append(result.Recipients, dispatch)
			if dispatch.Status == types.DispatchSent {
				result.EmailsSent++
			} else {
				result.EmailsFailed++
			}
		}
	}

	// The timestamp is stamped unconditionally after all recipients were
	// attempted. Skipping it on failure would make the next fan-out re-send
	// to recipients that already got the report.
	if err := w.orgs.SetLastReportGeneratedAt(ctx, payload.OrganizationID, now); err != nil {
		w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultFailure)
		return fmt.Errorf("reports: stamping last report time for org %s: %w", payload.OrganizationID, err)
	}

	if result.EmailsSent == 0 && result.EmailsFailed > 0 {
		logger.ErrorContext(ctx, "report generated but no email was delivered",
			"emails_failed", result.EmailsFailed,
		)
	} else {
		logger.InfoContext(ctx, "report complete",
			"emails_sent", result.EmailsSent,
			"emails_failed", result.EmailsFailed,
		)
	}

	w.writeResult(ctx, task, result, logger)
	w.sink.RecordJobOutcome(ctx, queue.TypeGenerateReport, metrics.ResultSuccess)
	return nil
}

// sendReport dispatches the rendered report to one recipient and appends the
// outcome to the email log. Log append failures are logged and swallowed;
// the audit trail is best-effort and never blocks delivery.
func (w *Worker) sendReport(ctx context.Context, logger *slog.Logger, orgID, recipient string, rendered mail.Rendered, jobID string) types.EmailDispatchResult {
	dispatch := types.EmailDispatchResult{RecipientEmail: recipient}

	messageID, err := w.sender.Send(ctx, types.SendInput{
		From:        w.from,
		To:          recipient,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: jobID,
	})
	if err != nil {
		dispatch.Status = types.DispatchFailed
		dispatch.Error = errorDetail(err)
		w.sink.RecordEmailDispatch(ctx, string(types.EmailLogReport), metrics.ResultFailure)
		logger.ErrorContext(ctx, "report email failed",
			"recipient", recipient,
			"error", err,
		)
	} else {
		dispatch.Status = types.DispatchSent
		w.sink.RecordEmailDispatch(ctx, string(types.EmailLogReport), metrics.ResultSuccess)
		logger.InfoContext(ctx, "report email sent",
			"recipient", recipient,
			"message_id", messageID,
		)
	}

	if err := w.emailLog.Append(ctx, &types.EmailLogEntry{
		OrganizationID: orgID,
		RecipientEmail: recipient,
		Kind:           types.EmailLogReport,
		Status:         dispatch.Status,
		Error:          dispatch.Error,
	}); err != nil {
		logger.ErrorContext(ctx, "failed to append email log entry",
			"recipient", recipient,
			"error", err,
		)
	}

	return dispatch
}

// writeResult stores the summary in the job's result slot when the broker
// retains results. ResultWriter is nil under some test harnesses.
func (w *Worker) writeResult(ctx context.Context, task *asynq.Task, result any, logger *slog.Logger) {
	rw := task.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal job result", "error", err)
		return
	}
	if _, err := rw.Write(data); err != nil {
		logger.ErrorContext(ctx, "failed to write job result", "error", err)
	}
}

// errorDetail renders an error for the dispatch record, surfacing the
// AppError message when one is present.
func errorDetail(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
