package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

// RepeatRegistrar abstracts the asynq scheduler's register/unregister
// operations for testability. Production code uses *asynq.Scheduler.
type RepeatRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (entryID string, err error)
	Unregister(entryID string) error
}

// RecurringScheduler owns the repeatable registrations for the report lane.
// Each registration has a logical name; Setup replaces any prior
// registration under the same name before adding a new one, so repeated
// startup calls converge on exactly one active trigger.
//
// Registrations are heartbeat-scoped to the owning scheduler process: a
// registration from a crashed replica expires on its own, and concurrent
// startups across replicas converge eventually rather than excluding each
// other. A transient window with duplicate triggers is possible and
// accepted; the fan-out's side effects tolerate duplication.
type RecurringScheduler struct {
	registrar RepeatRegistrar
	cronSpec  string
	retry     RetryConfig
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]string // logical name -> registered entry ID
}

// NewRecurringScheduler creates a RecurringScheduler that registers the
// daily fan-out under the given cron pattern (server timezone).
func NewRecurringScheduler(registrar RepeatRegistrar, cronSpec string, retry RetryConfig, logger *slog.Logger) *RecurringScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecurringScheduler{
		registrar: registrar,
		cronSpec:  cronSpec,
		retry:     retry,
		logger:    logger,
		entries:   make(map[string]string),
	}
}

// Setup registers the daily-report-check repeatable job, removing any prior
// registration under that name first. Called once at worker-process
// startup; calling it again leaves exactly one registration.
func (s *RecurringScheduler) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.entries[RepeatName]; ok {
		if err := s.registrar.Unregister(prevID); err != nil {
			return fmt.Errorf("queue: removing stale %s registration: %w", RepeatName, err)
		}
		delete(s.entries, RepeatName)
		s.logger.Info("stale repeatable registration removed",
			"name", RepeatName,
			"entry_id", prevID,
		)
	}

	task, err := NewScheduleAllTask(time.Time{})
	if err != nil {
		return err
	}

	entryID, err := s.registrar.Register(s.cronSpec, task,
		asynq.Queue(LaneReports),
		asynq.MaxRetry(s.retry.MaxAttempts-1),
		asynq.Retention(s.retry.CompletedRetention),
	)
	if err != nil {
		return fmt.Errorf("queue: registering %s: %w", RepeatName, err)
	}
	s.entries[RepeatName] = entryID

	s.logger.Info("repeatable report trigger registered",
		"name", RepeatName,
		"entry_id", entryID,
		"cron", s.cronSpec,
	)

	return nil
}

// Registered returns the entry IDs currently held by this scheduler, keyed
// by logical name. Read-only observability for the status surface and tests.
func (s *RecurringScheduler) Registered() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for name, id := range s.entries {
		out[name] = id
	}
	return out
}
