// Package queue implements the durable job store contract for the report
// pipeline on top of asynq (Redis-backed). It defines the task payload
// variants, the producer that enqueues them, the recurring schedule
// registration, and the worker server factory.
//
// Jobs are at-least-once: the broker delivers each job to exactly one worker
// per attempt, but a crash mid-processing causes a retry. Handlers must
// therefore tolerate re-execution (re-sent emails, re-stamped timestamps).
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// LaneReports is the queue lane carrying both report task variants.
const LaneReports = "clinic-reports"

// Task type identifiers. The two variants form an explicit tagged union:
// each has its own payload struct and constructor, and the worker mux
// dispatches on the type string. Adding a job kind means adding a type
// constant, a payload, a constructor, and a handler registration.
const (
	// TypeScheduleAll is the fan-out trigger: evaluate every organization's
	// eligibility and enqueue a TypeGenerateReport job per due organization.
	TypeScheduleAll = "reports:schedule_all"

	// TypeGenerateReport generates and emails one organization's report.
	TypeGenerateReport = "reports:generate"
)

// RepeatName is the logical name of the single repeatable registration that
// fires the fan-out on the daily cron trigger.
const RepeatName = "daily-report-check"

// ScheduleAllPayload is the payload of a TypeScheduleAll task. The trigger
// time is informational; the handler evaluates eligibility against its own
// clock at execution time.
type ScheduleAllPayload struct {
	TriggeredAt time.Time `json:"triggered_at"`
}

// GenerateReportPayload is the payload of a TypeGenerateReport task.
// AdminEmails is the recipient snapshot taken at enqueue time; the handler
// re-fetches admins at send time, so this field is informational and logged
// for traceability.
type GenerateReportPayload struct {
	OrganizationID   string   `json:"organization_id"`
	OrganizationName string   `json:"organization_name"`
	AdminEmails      []string `json:"admin_emails"`
	PeriodDays       int      `json:"period_days"`
}

// NewScheduleAllTask constructs the fan-out task.
func NewScheduleAllTask(triggeredAt time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(ScheduleAllPayload{TriggeredAt: triggeredAt})
	if err != nil {
		return nil, fmt.Errorf("queue: marshaling schedule-all payload: %w", err)
	}
	return asynq.NewTask(TypeScheduleAll, payload), nil
}

// NewGenerateReportTask constructs a single-organization report task.
func NewGenerateReportTask(p GenerateReportPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshaling report payload for org %s: %w", p.OrganizationID, err)
	}
	return asynq.NewTask(TypeGenerateReport, payload), nil
}

// JobHandle identifies an enqueued job. The ID doubles as the dedup key:
// the broker rejects a second enqueue with the same ID while the first is
// still live.
type JobHandle struct {
	ID   string `json:"id"`
	Lane string `json:"lane"`
}
