package db

import (
	"context"
	"time"

	"clinicpulse/internal/types"
)

// AppointmentRepository provides the reminder sweep's access to upcoming
// appointments. The sweep only reads candidates and flips the reminder flag;
// appointment CRUD is owned by the excluded scheduling layer.
type AppointmentRepository struct {
	db DBTX
}

// NewAppointmentRepository creates an AppointmentRepository backed by the
// given database connection.
func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// ListReminderCandidates returns appointments starting inside [from, to)
// with status 'scheduled' and no reminder sent yet, joined with the
// patient's email. The join is LEFT so that appointments whose patient has
// no email still surface; the sweep counts those as skips rather than
// silently ignoring them.
func (r *AppointmentRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]types.ReminderCandidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, COALESCE(a.organization_id, ''), COALESCE(p.name, ''),
		        COALESCE(p.email, ''), a.starts_at
		 FROM appointments a
		 LEFT JOIN patients p ON p.id = a.patient_id
		 WHERE a.starts_at >= $1 AND a.starts_at < $2
		   AND a.status = 'scheduled'
		   AND a.reminder_sent = FALSE
		 ORDER BY a.starts_at`,
		from, to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reminder candidates", err)
	}
	defer rows.Close()

	var candidates []types.ReminderCandidate
	for rows.Next() {
		var c types.ReminderCandidate
		if err := rows.Scan(&c.AppointmentID, &c.OrganizationID, &c.PatientName, &c.PatientEmail, &c.StartsAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reminder candidate", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate reminder candidates", err)
	}
	return candidates, nil
}

// MarkReminderSent flips the appointment's reminder flag and records when
// the reminder went out. Only called after a successful send, so a failed
// send leaves the appointment eligible for the next sweep.
func (r *AppointmentRepository) MarkReminderSent(ctx context.Context, appointmentID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments
		 SET reminder_sent = TRUE, reminder_sent_at = $1
		 WHERE id = $2`,
		at, appointmentID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalDB, "appointment not found for reminder update", nil)
	}
	return nil
}
