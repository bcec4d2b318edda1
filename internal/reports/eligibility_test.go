package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"clinicpulse/internal/types"
)

func TestIsDue_NeverReported(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	org := types.ReportOrg{ID: "org_1", AutoReportsEnabled: true}

	assert.True(t, IsDue(org, now, 3))
}

func TestIsDue_AutoReportsDisabled(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour)
	org := types.ReportOrg{
		ID:                    "org_1",
		AutoReportsEnabled:    false,
		LastReportGeneratedAt: &old,
	}

	// Even a very stale report does not make a disabled org due.
	assert.False(t, IsDue(org, now, 3))
}

func TestIsDue_Boundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	interval := 3

	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{
			name: "strictly older than interval",
			last: now.Add(-3*24*time.Hour - time.Second),
			want: true,
		},
		{
			name: "exactly interval ago",
			last: now.Add(-3 * 24 * time.Hour),
			want: false,
		},
		{
			name: "newer than interval",
			last: now.Add(-3*24*time.Hour + time.Second),
			want: false,
		},
		{
			name: "reported just now",
			last: now,
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			last := tc.last
			org := types.ReportOrg{
				ID:                    "org_1",
				AutoReportsEnabled:    true,
				LastReportGeneratedAt: &last,
			}
			assert.Equal(t, tc.want, IsDue(org, now, interval))
		})
	}
}

func TestIsDue_CustomInterval(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	fiveDaysAgo := now.Add(-5 * 24 * time.Hour)
	org := types.ReportOrg{
		ID:                    "org_1",
		AutoReportsEnabled:    true,
		LastReportGeneratedAt: &fiveDaysAgo,
	}

	assert.True(t, IsDue(org, now, 3))
	assert.False(t, IsDue(org, now, 7))
}

func TestEvaluateAll(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * 24 * time.Hour)
	fresh := now.Add(-1 * 24 * time.Hour)

	orgs := []types.ReportOrg{
		{ID: "org_due", Name: "Due Clinic", AutoReportsEnabled: true, LastReportGeneratedAt: &stale},
		{ID: "org_fresh", Name: "Fresh Clinic", AutoReportsEnabled: true, LastReportGeneratedAt: &fresh},
		{ID: "org_disabled", Name: "Disabled Clinic", AutoReportsEnabled: false},
		{ID: "org_new", Name: "New Clinic", AutoReportsEnabled: true},
	}

	statuses := EvaluateAll(orgs, now, 3)

	assert.Len(t, statuses, 4)
	assert.True(t, statuses[0].NeedsReport)
	assert.False(t, statuses[1].NeedsReport)
	assert.False(t, statuses[2].NeedsReport)
	assert.True(t, statuses[3].NeedsReport)

	// Status rows carry the source fields unchanged.
	assert.Equal(t, "org_due", statuses[0].OrganizationID)
	assert.Equal(t, "Due Clinic", statuses[0].OrganizationName)
	assert.Equal(t, &stale, statuses[0].LastReportGeneratedAt)
}

func TestEvaluateAll_Empty(t *testing.T) {
	statuses := EvaluateAll(nil, time.Now(), 3)
	assert.NotNil(t, statuses)
	assert.Empty(t, statuses)
}
