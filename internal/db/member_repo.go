package db

import (
	"context"

	"clinicpulse/internal/types"
)

// MemberRepository provides access to organization staff membership. The
// report pipeline only needs the admin recipient list; member CRUD lives in
// the excluded administration layer.
type MemberRepository struct {
	db DBTX
}

// NewMemberRepository creates a MemberRepository backed by the given
// database connection.
func NewMemberRepository(db DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// ListAdminEmails returns the email addresses of the organization's
// admin-role members. Members without an email on file are excluded at the
// query level, so an empty slice means the organization currently has no
// reachable admin.
func (r *MemberRepository) ListAdminEmails(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.email
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.organization_id = $1
		   AND m.role = 'admin'
		   AND u.email IS NOT NULL
		   AND u.email <> ''`,
		orgID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list admin emails", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan admin email", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate admin emails", err)
	}
	return emails, nil
}
