// Package reminders implements the appointment reminder sweep: a synchronous
// pass over upcoming appointments that emails each un-reminded patient,
// subject to a per-organization monthly email quota.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clinicpulse/internal/mail"
	"clinicpulse/internal/metrics"
	"clinicpulse/internal/types"
)

// AppointmentStore lists reminder candidates and marks them reminded.
// Implemented by db.AppointmentRepository.
type AppointmentStore interface {
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]types.ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, appointmentID string, at time.Time) error
}

// EmailLogStore reads the quota ledger and appends dispatch rows.
// Implemented by db.EmailLogRepository.
type EmailLogStore interface {
	Append(ctx context.Context, entry *types.EmailLogEntry) error
	CountForOrganizationSince(ctx context.Context, orgID string, since time.Time) (int, error)
}

// EmailSender transmits one pre-rendered email. Implemented by the external
// email providers.
type EmailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// ReminderRenderer renders the reminder email content.
// Implemented by mail.Renderer.
type ReminderRenderer interface {
	RenderReminder(c types.ReminderCandidate) (mail.Rendered, error)
}

// Sweeper runs reminder sweeps. Two concurrent sweeps can double-send:
// there is no dedup lock, and reminder_sent is only stamped after a
// successful send. Callers are expected to trigger at most one sweep at a
// time; the quota ledger takes the count-then-send race described on the
// email log repository.
type Sweeper struct {
	appointments AppointmentStore
	emailLog     EmailLogStore
	sender       EmailSender
	renderer     ReminderRenderer
	sink         metrics.Sink
	from         types.EmailAddress
	window       time.Duration
	monthlyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// SweeperConfig carries the Sweeper's collaborators and tuning.
type SweeperConfig struct {
	Appointments AppointmentStore
	EmailLog     EmailLogStore
	Sender       EmailSender
	Renderer     ReminderRenderer
	Sink         metrics.Sink
	// From is the sender identity stamped on every reminder email.
	From types.EmailAddress
	// Window is how far ahead of now the sweep looks for appointments.
	Window time.Duration
	// MonthlyLimit caps emails per organization per calendar month, counted
	// from the first of the month across both reminder and report sends.
	MonthlyLimit int
	Logger       *slog.Logger
}

// Sweep defaults.
const (
	DefaultWindow       = 24 * time.Hour
	DefaultMonthlyLimit = 1000
)

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MonthlyLimit <= 0 {
		cfg.MonthlyLimit = DefaultMonthlyLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = metrics.NewNoop()
	}
	return &Sweeper{
		appointments: cfg.Appointments,
		emailLog:     cfg.EmailLog,
		sender:       cfg.Sender,
		renderer:     cfg.Renderer,
		sink:         cfg.Sink,
		from:         cfg.From,
		window:       cfg.Window,
		monthlyLimit: cfg.MonthlyLimit,
		logger:       cfg.Logger,
	}
}

// WithClock overrides the sweeper's clock for deterministic tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// monthStart returns the first instant of now's calendar month in UTC.
func monthStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// Preview lists the appointments the next sweep would consider, without
// sending anything or mutating any state. Backs the dry-run endpoint.
func (s *Sweeper) Preview(ctx context.Context) ([]types.ReminderCandidate, error) {
	now := s.clock()
	candidates, err := s.appointments.ListReminderCandidates(ctx, now, now.Add(s.window))
	if err != nil {
		return nil, fmt.Errorf("reminders: listing sweep candidates: %w", err)
	}
	return candidates, nil
}

// Run executes one reminder sweep: list candidates in [now, now+window],
// send a reminder to each, stamp reminder_sent on success, and append every
// attempt to the email log.
//
// A candidate with no patient email or no organization is skipped. A
// candidate whose organization has exhausted its monthly quota is skipped.
// Send failures are counted and collected but never abort the sweep; only a
// candidate-listing failure does.
func (s *Sweeper) Run(ctx context.Context) (*types.SweepResult, error) {
	now := s.clock()
	since := monthStart(now)

	candidates, err := s.appointments.ListReminderCandidates(ctx, now, now.Add(s.window))
	if err != nil {
		return nil, fmt.Errorf("reminders: listing sweep candidates: %w", err)
	}

	result := &types.SweepResult{Total: len(candidates)}
	s.logger.InfoContext(ctx, "starting reminder sweep",
		"candidates", len(candidates),
		"window", s.window.String(),
	)

	// Quota counts are fetched once per organization per sweep and
	// incremented locally as sends go out.
	quotaUsed := make(map[string]int)

	for _, c := range candidates {
		if c.PatientEmail == "" || c.OrganizationID == "" {
			result.Skipped++
			s.logger.InfoContext(ctx, "skipping reminder candidate",
				"appointment_id", c.AppointmentID,
				"reason", skipReason(c),
			)
			continue
		}

		used, ok := quotaUsed[c.OrganizationID]
		if !ok {
			used, err = s.emailLog.CountForOrganizationSince(ctx, c.OrganizationID, since)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("appointment %s: quota check: %v", c.AppointmentID, err))
				s.logger.ErrorContext(ctx, "quota check failed",
					"appointment_id", c.AppointmentID,
					"organization_id", c.OrganizationID,
					"error", err,
				)
				continue
			}
			quotaUsed[c.OrganizationID] = used
		}
		if used >= s.monthlyLimit {
			result.Skipped++
			s.logger.WarnContext(ctx, "monthly email quota reached, skipping reminder",
				"appointment_id", c.AppointmentID,
				"organization_id", c.OrganizationID,
				"used", used,
				"limit", s.monthlyLimit,
			)
			continue
		}

		if err := s.remind(ctx, c); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("appointment %s: %v", c.AppointmentID, err))
			continue
		}
		result.Sent++
		quotaUsed[c.OrganizationID]++
	}

	s.logger.InfoContext(ctx, "reminder sweep complete",
		"total", result.Total,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	s.sink.RecordSweepOutcome(ctx, result.Sent, result.Failed, result.Skipped)

	return result, nil
}

// remind sends one reminder and records the outcome. reminder_sent is only
// stamped after a successful send, so a failed candidate is retried by the
// next sweep. Every send attempt appends an email log row.
func (s *Sweeper) remind(ctx context.Context, c types.ReminderCandidate) error {
	rendered, err := s.renderer.RenderReminder(c)
	if err != nil {
		return err
	}

	messageID, sendErr := s.sender.Send(ctx, types.SendInput{
		From:        s.from,
		To:          c.PatientEmail,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: c.AppointmentID,
	})

	entry := &types.EmailLogEntry{
		OrganizationID: c.OrganizationID,
		RecipientEmail: c.PatientEmail,
		Kind:           types.EmailLogReminder,
		Status:         types.DispatchSent,
	}
	if sendErr != nil {
		entry.Status = types.DispatchFailed
		entry.Error = sendErr.Error()
	}
	if err := s.emailLog.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to append email log entry",
			"appointment_id", c.AppointmentID,
			"error", err,
		)
	}

	if sendErr != nil {
		s.sink.RecordEmailDispatch(ctx, string(types.EmailLogReminder), metrics.ResultFailure)
		s.logger.ErrorContext(ctx, "reminder email failed",
			"appointment_id", c.AppointmentID,
			"organization_id", c.OrganizationID,
			"error", sendErr,
		)
		return sendErr
	}

	s.sink.RecordEmailDispatch(ctx, string(types.EmailLogReminder), metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "reminder email sent",
		"appointment_id", c.AppointmentID,
		"organization_id", c.OrganizationID,
		"message_id", messageID,
	)

	if err := s.appointments.MarkReminderSent(ctx, c.AppointmentID, s.clock()); err != nil {
		// The email is out; the flag write failing means the next sweep may
		// re-send. Surfaced in the sweep errors but not counted as a failed
		// send.
		s.logger.ErrorContext(ctx, "failed to mark reminder sent",
			"appointment_id", c.AppointmentID,
			"error", err,
		)
	}

	return nil
}

func skipReason(c types.ReminderCandidate) string {
	if c.PatientEmail == "" {
		return "patient has no email"
	}
	return "appointment has no organization"
}
