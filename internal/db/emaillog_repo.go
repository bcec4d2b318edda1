package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinicpulse/internal/types"
)

// EmailLogRepository manages the append-only email log shared by the report
// and reminder flows. Rows are never updated or deleted; the monthly quota
// check is a count over rows since the first of the current calendar month.
//
// The count-then-send pattern has a small race window under concurrent
// sweeps: two senders can both observe count=limit-1 and both proceed. The
// ceiling may be exceeded by a small margin; append-only inserts need no
// lock.
type EmailLogRepository struct {
	db DBTX
}

// NewEmailLogRepository creates an EmailLogRepository backed by the given
// database connection.
func NewEmailLogRepository(db DBTX) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

// Append inserts one email log row. The entry ID is generated when absent.
// Every send attempt appends, success or failure, so the log doubles as the
// quota ledger and the audit trail.
func (r *EmailLogRepository) Append(ctx context.Context, entry *types.EmailLogEntry) error {
	if entry.ID == "" {
		entry.ID = "eml_" + uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO email_logs (id, organization_id, recipient_email, kind, status, error, sent_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		entry.ID,
		entry.OrganizationID,
		entry.RecipientEmail,
		string(entry.Kind),
		string(entry.Status),
		entry.Error,
		entry.SentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append email log entry", err)
	}
	return nil
}

// CountForOrganizationSince returns how many email log rows the organization
// has accumulated since the given time. The sweep passes the first of the
// current calendar month to enforce the monthly ceiling.
func (r *EmailLogRepository) CountForOrganizationSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_logs
		 WHERE organization_id = $1 AND sent_at >= $2`,
		orgID, since,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count email log entries", err)
	}
	return n, nil
}
