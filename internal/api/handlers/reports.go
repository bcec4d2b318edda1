// Package handlers contains the HTTP handlers for the ClinicPulse trigger
// surface: manual report triggering, report pipeline status, and the
// reminder sweep.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicpulse/internal/core"
	"clinicpulse/internal/queue"
	"clinicpulse/internal/reports"
	"clinicpulse/internal/types"
)

// ReportOrgRepo is the organization data access the report handler needs.
// Mirrors db.OrganizationRepository.
type ReportOrgRepo interface {
	ListReportOrgs(ctx context.Context) ([]types.ReportOrg, error)
	GetReportOrg(ctx context.Context, id string) (*types.ReportOrg, error)
}

// ReportMemberRepo resolves admin recipients. Mirrors db.MemberRepository.
type ReportMemberRepo interface {
	ListAdminEmails(ctx context.Context, orgID string) ([]string, error)
}

// ReportProducer is the enqueue surface the trigger endpoints use.
// Mirrors queue.Producer.
type ReportProducer interface {
	AddReportJob(ctx context.Context, data queue.GenerateReportPayload) (queue.JobHandle, error)
	ScheduleAllReports(ctx context.Context) (queue.JobHandle, error)
}

// LaneStats reads job counts from the broker. Mirrors queue.Stats.
type LaneStats interface {
	Counts(lane string) (queue.LaneCounts, error)
}

// TriggerReportRequest is the body for POST /v1/reports/trigger. With an
// organization ID, a single report is enqueued for that organization,
// bypassing the eligibility check. Without one, the fan-out job is enqueued
// and eligibility applies as usual.
type TriggerReportRequest struct {
	OrganizationID string `json:"organization_id,omitempty" validate:"omitempty,max=100"`
	PeriodDays     int    `json:"period_days,omitempty" validate:"omitempty,min=1,max=365"`
}

// TriggerReportResponse describes the enqueued job.
type TriggerReportResponse struct {
	Job            queue.JobHandle `json:"job"`
	OrganizationID string          `json:"organization_id,omitempty"`
}

// ReportStatusResponse is the body for GET /v1/reports/status.
type ReportStatusResponse struct {
	Organizations []types.OrgReportStatus `json:"organizations"`
	Queue         queue.LaneCounts        `json:"queue"`
	IntervalDays  int                     `json:"interval_days"`
	CheckedAt     time.Time               `json:"checked_at"`
}

// ReportsHandler exposes the manual trigger and status endpoints for the
// report pipeline.
type ReportsHandler struct {
	orgs         ReportOrgRepo
	members      ReportMemberRepo
	producer     ReportProducer
	stats        LaneStats
	intervalDays int
	validator    *core.Validator
	logger       *slog.Logger
	now          func() time.Time
}

// NewReportsHandler creates a ReportsHandler.
func NewReportsHandler(
	orgs ReportOrgRepo,
	members ReportMemberRepo,
	producer ReportProducer,
	stats LaneStats,
	intervalDays int,
	v *core.Validator,
	l *slog.Logger,
) *ReportsHandler {
	if intervalDays <= 0 {
		intervalDays = reports.DefaultIntervalDays
	}
	if l == nil {
		l = slog.Default()
	}
	return &ReportsHandler{
		orgs:         orgs,
		members:      members,
		producer:     producer,
		stats:        stats,
		intervalDays: intervalDays,
		validator:    v,
		logger:       l,
		now:          time.Now,
	}
}

// WithClock overrides the handler's clock for deterministic tests.
func (h *ReportsHandler) WithClock(now func() time.Time) *ReportsHandler {
	h.now = now
	return h
}

// RegisterRoutes mounts the report routes.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/trigger", h.Trigger)
		r.Get("/status", h.Status)
	})
}

// Trigger handles POST /v1/reports/trigger.
//
// A request naming an organization enqueues one report job for it
// immediately; the eligibility check does not apply to manual triggers. An
// empty body (or body without organization_id) enqueues the fan-out job,
// which applies eligibility exactly as the daily schedule does.
func (h *ReportsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerReportRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	ctx := r.Context()

	if req.OrganizationID == "" {
		handle, err := h.producer.ScheduleAllReports(ctx)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeUpstreamQueue,
				"failed to enqueue fan-out job",
				err,
			))
			return
		}
		core.JSON(w, r, http.StatusAccepted, core.APIResponse{
			Data: TriggerReportResponse{Job: handle},
		})
		return
	}

	org, err := h.orgs.GetReportOrg(ctx, req.OrganizationID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	admins, err := h.members.ListAdminEmails(ctx, org.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	periodDays := req.PeriodDays
	if periodDays <= 0 {
		periodDays = h.intervalDays
	}

	handle, err := h.producer.AddReportJob(ctx, queue.GenerateReportPayload{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		AdminEmails:      admins,
		PeriodDays:       periodDays,
	})
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamQueue,
			"failed to enqueue report job",
			err,
		))
		return
	}

	h.logger.InfoContext(ctx, "manual report trigger accepted",
		"organization_id", org.ID,
		"job_id", handle.ID,
	)

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{
		Data: TriggerReportResponse{Job: handle, OrganizationID: org.ID},
	})
}

// Status handles GET /v1/reports/status. Every organization is returned
// with its needs_report flag computed by the same evaluator the fan-out
// uses, alongside the lane's current job counts.
func (h *ReportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	orgs, err := h.orgs.ListReportOrgs(ctx)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	counts, err := h.stats.Counts(queue.LaneReports)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamQueue,
			"failed to read queue counts",
			err,
		))
		return
	}

	resp := ReportStatusResponse{
		Organizations: reports.EvaluateAll(orgs, now, h.intervalDays),
		Queue:         counts,
		IntervalDays:  h.intervalDays,
		CheckedAt:     now,
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}
