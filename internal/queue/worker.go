package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// RetryDelay computes the wait before retry n of a failed job: exponential
// doubling from the base (base, 2*base, 4*base, ...). With the default 1s
// base and 3 total attempts this yields 1s and 2s between attempts.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return base << n
	}
}

// NewWorkerServer builds the asynq server for the report lane. Concurrency
// bounds how many jobs are active simultaneously within this process;
// multiple worker processes may run against the same broker, each
// independently bounded, and the broker guarantees single delivery per
// attempt.
//
// A job handler returning an error marks the job failed and schedules a
// retry per RetryDelay until the enqueue-time attempt ceiling is reached;
// permanently failed jobs are archived by the broker for operator
// inspection, not dropped.
func NewWorkerServer(redis asynq.RedisClientOpt, concurrency int, backoffBase time.Duration, logger *slog.Logger) *asynq.Server {
	if logger == nil {
		logger = slog.Default()
	}

	return asynq.NewServer(redis, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{LaneReports: 1},
		RetryDelayFunc: RetryDelay(backoffBase),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			taskID, _ := asynq.GetTaskID(ctx)
			logger.ErrorContext(ctx, "job attempt failed",
				"job_id", taskID,
				"type", task.Type(),
				"attempt", retried+1,
				"max_attempts", maxRetry+1,
				"error", err,
			)
		}),
		Logger: &asynqLogger{logger: logger},
	})
}

// asynqLogger adapts *slog.Logger to the asynq.Logger interface so broker
// internals log through the application's structured logger.
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.logger.Error(sprint(args...)) }

func sprint(args ...interface{}) string {
	return fmt.Sprint(args...)
}
