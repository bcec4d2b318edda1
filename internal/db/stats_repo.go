package db

import (
	"context"
	"time"

	"clinicpulse/internal/types"
)

// ReportStatsRepository runs the aggregate count queries behind a single
// organization's period report. Each method is one read-only aggregate; the
// stats collector issues them concurrently, so no cross-query consistency is
// guaranteed (slight skew under concurrent writes is acceptable).
type ReportStatsRepository struct {
	db DBTX
}

// NewReportStatsRepository creates a ReportStatsRepository backed by the
// given database connection.
func NewReportStatsRepository(db DBTX) *ReportStatsRepository {
	return &ReportStatsRepository{db: db}
}

// countOne runs a single-value COUNT query and scans the result.
func (r *ReportStatsRepository) countOne(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "aggregate count query failed", err)
	}
	return n, nil
}

// CountPatients returns the organization's total active patient count.
func (r *ReportStatsRepository) CountPatients(ctx context.Context, orgID string) (int, error) {
	return r.countOne(ctx,
		`SELECT COUNT(*) FROM patients
		 WHERE organization_id = $1 AND deleted_at IS NULL`,
		orgID,
	)
}

// CountPatientsCreatedSince returns the number of patients registered on or
// after the period start.
func (r *ReportStatsRepository) CountPatientsCreatedSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	return r.countOne(ctx,
		`SELECT COUNT(*) FROM patients
		 WHERE organization_id = $1 AND deleted_at IS NULL AND created_at >= $2`,
		orgID, since,
	)
}

// CountAppointments returns the organization's all-time appointment count.
func (r *ReportStatsRepository) CountAppointments(ctx context.Context, orgID string) (int, error) {
	return r.countOne(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE organization_id = $1`,
		orgID,
	)
}

// CountAppointmentsInRange returns the appointments scheduled inside
// [from, to).
func (r *ReportStatsRepository) CountAppointmentsInRange(ctx context.Context, orgID string, from, to time.Time) (int, error) {
	return r.countOne(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE organization_id = $1 AND starts_at >= $2 AND starts_at < $3`,
		orgID, from, to,
	)
}

// CountAppointmentsByStatusInRange returns the appointments with the given
// status inside [from, to). Status values are the appointment lifecycle
// states owned by the scheduling layer ("completed", "cancelled", "no_show").
func (r *ReportStatsRepository) CountAppointmentsByStatusInRange(ctx context.Context, orgID, status string, from, to time.Time) (int, error) {
	return r.countOne(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE organization_id = $1 AND status = $2 AND starts_at >= $3 AND starts_at < $4`,
		orgID, status, from, to,
	)
}
