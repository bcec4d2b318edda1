// Package metrics defines the telemetry sink for the report pipeline and
// reminder sweep, with a CloudWatch-backed implementation for deployments
// and a no-op implementation for local development and tests.
package metrics

import (
	"context"
)

// Result values for job and dispatch outcome metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Sink receives pipeline outcome events. Implementations must be
// best-effort: a telemetry failure is logged, never propagated into the job
// or sweep that produced the event.
type Sink interface {
	// RecordJobOutcome records one completed or failed job execution for the
	// given task type.
	RecordJobOutcome(ctx context.Context, taskType, result string)

	// RecordEmailDispatch records one email send attempt by kind
	// (clinic_report or appointment_reminder) and result.
	RecordEmailDispatch(ctx context.Context, kind, result string)

	// RecordSweepOutcome records the aggregate counters of one reminder
	// sweep invocation.
	RecordSweepOutcome(ctx context.Context, sent, failed, skipped int)
}

// Noop is a Sink that discards all events. Used when metrics are disabled
// and as the default in tests.
type Noop struct{}

// NewNoop returns a no-op sink.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) RecordJobOutcome(context.Context, string, string)   {}
func (*Noop) RecordEmailDispatch(context.Context, string, string) {}
func (*Noop) RecordSweepOutcome(context.Context, int, int, int)   {}

// Compile-time assertion that Noop implements Sink.
var _ Sink = (*Noop)(nil)
