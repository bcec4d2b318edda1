// Package reports implements the report pipeline's domain logic: the pure
// eligibility evaluator, the period statistics collector, and the worker
// handlers for the fan-out and single-organization report jobs.
package reports

import (
	"time"

	"clinicpulse/internal/types"
)

// DefaultIntervalDays is the fallback eligibility interval when none is
// configured: an organization is due when its last report is more than this
// many days old.
const DefaultIntervalDays = 3

// IsDue reports whether an organization is due for a periodic report at the
// given instant. An organization is due iff auto reports are enabled AND it
// has never had a report OR its last report is strictly older than the
// interval. The boundary is exclusive: a report generated exactly
// intervalDays ago does not make the organization due; it becomes due the
// next instant after.
//
// This function is the single source of eligibility truth. The fan-out
// handler and the read-only status endpoint both call it, so observed status
// and queueing behavior cannot diverge.
func IsDue(org types.ReportOrg, now time.Time, intervalDays int) bool {
	if !org.AutoReportsEnabled {
		return false
	}
	if org.LastReportGeneratedAt == nil {
		return true
	}
	cutoff := now.Add(-time.Duration(intervalDays) * 24 * time.Hour)
	return org.LastReportGeneratedAt.Before(cutoff)
}

// EvaluateAll maps every organization to its status row with the computed
// needs_report flag. Used by the status endpoint.
func EvaluateAll(orgs []types.ReportOrg, now time.Time, intervalDays int) []types.OrgReportStatus {
	statuses := make([]types.OrgReportStatus, 0, len(orgs))
	for _, org := range orgs {
		statuses = append(statuses, types.OrgReportStatus{
			OrganizationID:        org.ID,
			OrganizationName:      org.Name,
			AutoReportsEnabled:    org.AutoReportsEnabled,
			LastReportGeneratedAt: org.LastReportGeneratedAt,
			NeedsReport:           IsDue(org, now, intervalDays),
		})
	}
	return statuses
}
