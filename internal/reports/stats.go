package reports

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"clinicpulse/internal/types"
)

// Appointment lifecycle states the report aggregates over. Owned by the
// excluded scheduling layer; the report pipeline only counts them.
const (
	apptStatusCompleted = "completed"
	apptStatusCancelled = "cancelled"
	apptStatusNoShow    = "no_show"
)

// StatsStore defines the aggregate queries required to assemble one
// organization's period statistics. Implemented by db.ReportStatsRepository;
// tests use in-memory mocks.
type StatsStore interface {
	CountPatients(ctx context.Context, orgID string) (int, error)
	CountPatientsCreatedSince(ctx context.Context, orgID string, since time.Time) (int, error)
	CountAppointments(ctx context.Context, orgID string) (int, error)
	CountAppointmentsInRange(ctx context.Context, orgID string, from, to time.Time) (int, error)
	CountAppointmentsByStatusInRange(ctx context.Context, orgID, status string, from, to time.Time) (int, error)
}

// CollectPeriodStats runs the seven aggregate queries for the organization's
// report period [now - periodDays, now] and derives the completion and
// no-show rates.
//
// The queries are read-only and order-independent, so they execute
// concurrently in one errgroup; the first error cancels the remaining
// queries and fails the collection. No cross-query consistency is required:
// slight skew under concurrent writes is acceptable.
func CollectPeriodStats(ctx context.Context, store StatsStore, orgID string, periodDays int, now time.Time) (*types.ReportPeriodStats, error) {
	from := now.Add(-time.Duration(periodDays) * 24 * time.Hour)

	stats := &types.ReportPeriodStats{PeriodDays: periodDays}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalPatients, err = store.CountPatients(gctx, orgID)
		return err
	})
	g.Go(func() (err error) {
		stats.NewPatientsThisPeriod, err = store.CountPatientsCreatedSince(gctx, orgID, from)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalAppointments, err = store.CountAppointments(gctx, orgID)
		return err
	})
	g.Go(func() (err error) {
		stats.AppointmentsThisPeriod, err = store.CountAppointmentsInRange(gctx, orgID, from, now)
		return err
	})
	g.Go(func() (err error) {
		stats.CompletedAppointments, err = store.CountAppointmentsByStatusInRange(gctx, orgID, apptStatusCompleted, from, now)
		return err
	})
	g.Go(func() (err error) {
		stats.CancelledAppointments, err = store.CountAppointmentsByStatusInRange(gctx, orgID, apptStatusCancelled, from, now)
		return err
	})
	g.Go(func() (err error) {
		stats.NoShowAppointments, err = store.CountAppointmentsByStatusInRange(gctx, orgID, apptStatusNoShow, from, now)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reports: collecting period stats for org %s: %w", orgID, err)
	}

	stats.CompletionRate = formatRate(stats.CompletedAppointments, stats.AppointmentsThisPeriod)
	stats.NoShowRate = formatRate(stats.NoShowAppointments, stats.AppointmentsThisPeriod)

	return stats, nil
}

// formatRate renders numerator/denominator as a percentage string with one
// decimal place. A zero denominator yields the literal "0" (never NaN and
// never a panic), matching the report contract.
func formatRate(numerator, denominator int) string {
	if denominator == 0 {
		return "0"
	}
	rate := float64(numerator) / float64(denominator) * 100
	return strconv.FormatFloat(rate, 'f', 1, 64)
}
