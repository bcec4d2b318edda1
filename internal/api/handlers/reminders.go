package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinicpulse/internal/core"
	"clinicpulse/internal/types"
)

// ReminderSweeper runs and previews reminder sweeps. Mirrors
// reminders.Sweeper.
type ReminderSweeper interface {
	Run(ctx context.Context) (*types.SweepResult, error)
	Preview(ctx context.Context) ([]types.ReminderCandidate, error)
}

// SweepPreviewResponse is the body for GET /v1/reminders/sweep.
type SweepPreviewResponse struct {
	Candidates []types.ReminderCandidate `json:"candidates"`
	Total      int                       `json:"total"`
}

// RemindersHandler exposes the reminder sweep endpoints. The sweep runs
// synchronously inside the request: the caller gets the full outcome
// summary in the response.
type RemindersHandler struct {
	sweeper ReminderSweeper
	logger  *slog.Logger
}

// NewRemindersHandler creates a RemindersHandler.
func NewRemindersHandler(sweeper ReminderSweeper, l *slog.Logger) *RemindersHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RemindersHandler{
		sweeper: sweeper,
		logger:  l,
	}
}

// RegisterRoutes mounts the reminder routes.
func (h *RemindersHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reminders", func(r chi.Router) {
		r.Post("/sweep", h.Sweep)
		r.Get("/sweep", h.PreviewSweep)
	})
}

// Sweep handles POST /v1/reminders/sweep. Failed sends inside the sweep are
// reported in the summary, not as an HTTP error; only a sweep that could
// not list its candidates fails the request.
func (h *RemindersHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Run(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// PreviewSweep handles GET /v1/reminders/sweep: a dry run listing the
// appointments the next sweep would consider, with no sends and no state
// changes.
func (h *RemindersHandler) PreviewSweep(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.sweeper.Preview(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: SweepPreviewResponse{
			Candidates: candidates,
			Total:      len(candidates),
		},
	})
}
