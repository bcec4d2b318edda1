// Package types defines the shared domain types for the ClinicPulse report
// and reminder pipeline: organization report eligibility rows, period
// statistics, email dispatch results, reminder sweep aggregates, and the
// cross-cutting error and secret primitives.
package types

import (
	"time"
)

// ReportOrg is the projection of an organization used by the report pipeline.
// It carries only the fields the eligibility evaluator and the report worker
// need; the full organization record is owned by the excluded CRUD layer.
type ReportOrg struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	AutoReportsEnabled    bool       `json:"auto_reports_enabled"`
	LastReportGeneratedAt *time.Time `json:"last_report_generated_at,omitempty"`
}

// ReportPeriodStats holds the aggregate counters computed for a single
// organization's report period. Computed fresh per job execution and never
// persisted.
//
// CompletionRate and NoShowRate are pre-formatted percentage strings with one
// decimal place ("85.7"). When AppointmentsThisPeriod is zero both rates are
// the literal string "0", never NaN.
type ReportPeriodStats struct {
	TotalPatients          int    `json:"total_patients"`
	NewPatientsThisPeriod  int    `json:"new_patients_this_period"`
	TotalAppointments      int    `json:"total_appointments"`
	AppointmentsThisPeriod int    `json:"appointments_this_period"`
	CompletedAppointments  int    `json:"completed_appointments"`
	CancelledAppointments  int    `json:"cancelled_appointments"`
	NoShowAppointments     int    `json:"no_show_appointments"`
	CompletionRate         string `json:"completion_rate"`
	NoShowRate             string `json:"no_show_rate"`
	PeriodDays             int    `json:"period_days"`
}

// DispatchStatus is the terminal outcome of a single email dispatch attempt.
type DispatchStatus string

const (
	DispatchSent   DispatchStatus = "sent"
	DispatchFailed DispatchStatus = "failed"
)

// EmailDispatchResult records the outcome of one report email to one admin
// recipient. Aggregated into the job's return value; not separately persisted.
type EmailDispatchResult struct {
	RecipientEmail string         `json:"recipient_email"`
	Status         DispatchStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
}

// ReminderCandidate is an appointment eligible for a reminder email: it falls
// inside the sweep window, has status "scheduled", and has not been reminded
// yet. PatientEmail is empty when the patient has no email on file;
// OrganizationID is empty when the appointment is orphaned. Both conditions
// are counted as skips by the sweep, not errors.
type ReminderCandidate struct {
	AppointmentID  string    `json:"appointment_id"`
	OrganizationID string    `json:"organization_id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	StartsAt       time.Time `json:"starts_at"`
}

// EmailLogKind distinguishes the flows that append to the email log.
type EmailLogKind string

const (
	EmailLogReminder EmailLogKind = "appointment_reminder"
	EmailLogReport   EmailLogKind = "clinic_report"
)

// EmailLogEntry is one append-only row in the shared email log. Every send
// attempt appends a row, success or failure; the monthly quota check
// counts rows from the first of the current calendar month.
type EmailLogEntry struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	RecipientEmail string         `json:"recipient_email"`
	Kind           EmailLogKind   `json:"kind"`
	Status         DispatchStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// SweepResult is the aggregate outcome of one reminder sweep invocation.
// Failed sends are counted but never abort the sweep; the triggering caller
// always receives this summary unless the store itself is unreachable.
type SweepResult struct {
	Total   int      `json:"total"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// EmailAddress pairs an address with an optional display name.
type EmailAddress struct {
	Address string
	Name    string
}

// SendInput carries one pre-rendered email to the transport layer. Providers
// transmit the content as-is; no server-side templating.
type SendInput struct {
	From     EmailAddress
	To       string
	Subject  string
	BodyHTML string
	BodyText string
	// ReferenceID correlates the provider dispatch with internal job or
	// appointment identifiers for audit trails.
	ReferenceID string
}

// OrgReportStatus is the read-only status row returned by the report status
// endpoint: every organization with its computed needs_report flag. The flag
// is produced by the same eligibility evaluator the fan-out handler uses, so
// status and behavior cannot diverge.
type OrgReportStatus struct {
	OrganizationID        string     `json:"organization_id"`
	OrganizationName      string     `json:"organization_name"`
	AutoReportsEnabled    bool       `json:"auto_reports_enabled"`
	LastReportGeneratedAt *time.Time `json:"last_report_generated_at,omitempty"`
	NeedsReport           bool       `json:"needs_report"`
}
