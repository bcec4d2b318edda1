package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicpulse/internal/types"
)

// OrganizationRepository provides the report pipeline's data access to the
// organizations table. It reads only the fields the eligibility evaluator
// needs and writes only last_report_generated_at; everything else on the
// table belongs to the excluded CRUD layer.
type OrganizationRepository struct {
	db DBTX
}

// NewOrganizationRepository creates an OrganizationRepository backed by the
// given database connection (pool or transaction).
func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// reportOrgColumns is the projection shared by all report-org queries.
const reportOrgColumns = `o.id, o.name, o.auto_reports_enabled, o.last_report_generated_at`

// scanReportOrg scans a single row into a types.ReportOrg. The columns must
// match the order defined in reportOrgColumns.
func scanReportOrg(row pgx.Row) (*types.ReportOrg, error) {
	var org types.ReportOrg
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.AutoReportsEnabled,
		&org.LastReportGeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// ListReportOrgs returns the report projection of every active organization.
// Eligibility filtering happens at the application layer so that the fan-out
// handler and the status endpoint apply identical logic.
func (r *OrganizationRepository) ListReportOrgs(ctx context.Context) ([]types.ReportOrg, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reportOrgColumns+`
		 FROM organizations o
		 WHERE o.deleted_at IS NULL
		 ORDER BY o.created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	defer rows.Close()

	var orgs []types.ReportOrg
	for rows.Next() {
		org, err := scanReportOrg(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization row", err)
		}
		orgs = append(orgs, *org)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate organization rows", err)
	}
	return orgs, nil
}

// GetReportOrg retrieves a single organization's report projection.
// Returns a not-found AppError for unknown or soft-deleted organizations.
func (r *OrganizationRepository) GetReportOrg(ctx context.Context, id string) (*types.ReportOrg, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reportOrgColumns+`
		 FROM organizations o
		 WHERE o.id = $1 AND o.deleted_at IS NULL`,
		id,
	)

	org, err := scanReportOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve organization", err)
	}
	return org, nil
}

// SetLastReportGeneratedAt stamps the organization's last report time. Called
// unconditionally by the report handler after all recipients were attempted,
// regardless of how many sends succeeded.
func (r *OrganizationRepository) SetLastReportGeneratedAt(ctx context.Context, orgID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET last_report_generated_at = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		at,
		orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last_report_generated_at", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return nil
}
