package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicpulse/internal/core"
	"clinicpulse/internal/queue"
	"clinicpulse/internal/types"
)

// --- In-package mocks ---

type mockOrgRepo struct {
	orgs    map[string]*types.ReportOrg
	listErr error
}

func (m *mockOrgRepo) ListReportOrgs(ctx context.Context) ([]types.ReportOrg, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]types.ReportOrg, 0, len(m.orgs))
	for _, org := range m.orgs {
		out = append(out, *org)
	}
	return out, nil
}

func (m *mockOrgRepo) GetReportOrg(ctx context.Context, id string) (*types.ReportOrg, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return org, nil
}

type mockMemberRepo struct {
	admins map[string][]string
}

func (m *mockMemberRepo) ListAdminEmails(ctx context.Context, orgID string) ([]string, error) {
	return m.admins[orgID], nil
}

type mockProducer struct {
	reportPayloads []queue.GenerateReportPayload
	fanOuts        int
	err            error
}

func (m *mockProducer) AddReportJob(ctx context.Context, data queue.GenerateReportPayload) (queue.JobHandle, error) {
	if m.err != nil {
		return queue.JobHandle{}, m.err
	}
	m.reportPayloads = append(m.reportPayloads, data)
	return queue.JobHandle{ID: "job_report", Lane: queue.LaneReports}, nil
}

func (m *mockProducer) ScheduleAllReports(ctx context.Context) (queue.JobHandle, error) {
	if m.err != nil {
		return queue.JobHandle{}, m.err
	}
	m.fanOuts++
	return queue.JobHandle{ID: "job_fanout", Lane: queue.LaneReports}, nil
}

type mockLaneStats struct {
	counts queue.LaneCounts
	err    error
}

func (m *mockLaneStats) Counts(lane string) (queue.LaneCounts, error) {
	if m.err != nil {
		return queue.LaneCounts{}, m.err
	}
	return m.counts, nil
}

// --- Fixtures ---

var handlerNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type reportsFixture struct {
	orgs     *mockOrgRepo
	members  *mockMemberRepo
	producer *mockProducer
	stats    *mockLaneStats
	router   *chi.Mux
}

func newReportsFixture(t *testing.T) *reportsFixture {
	t.Helper()

	f := &reportsFixture{
		orgs:     &mockOrgRepo{orgs: map[string]*types.ReportOrg{}},
		members:  &mockMemberRepo{admins: map[string][]string{}},
		producer: &mockProducer{},
		stats:    &mockLaneStats{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewReportsHandler(
		f.orgs, f.members, f.producer, f.stats,
		3, core.NewValidator(logger), logger,
	).WithClock(func() time.Time { return handlerNow })

	f.router = chi.NewRouter()
	h.RegisterRoutes(f.router)
	return f
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

// --- Trigger ---

func TestTrigger_SingleOrgBypassesEligibility(t *testing.T) {
	f := newReportsFixture(t)
	// A report generated minutes ago; a fan-out would not pick this org up.
	justNow := handlerNow.Add(-10 * time.Minute)
	f.orgs.orgs["org_1"] = &types.ReportOrg{
		ID: "org_1", Name: "Test Clinic", AutoReportsEnabled: true,
		LastReportGeneratedAt: &justNow,
	}
	f.members.admins["org_1"] = []string{"a@clinic.io"}

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger",
		TriggerReportRequest{OrganizationID: "org_1"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.producer.reportPayloads, 1)
	assert.Equal(t, "org_1", f.producer.reportPayloads[0].OrganizationID)
	assert.Equal(t, 3, f.producer.reportPayloads[0].PeriodDays)
	assert.Equal(t, 0, f.producer.fanOuts)
}

func TestTrigger_CustomPeriodDays(t *testing.T) {
	f := newReportsFixture(t)
	f.orgs.orgs["org_1"] = &types.ReportOrg{ID: "org_1", Name: "Test Clinic"}
	f.members.admins["org_1"] = []string{"a@clinic.io"}

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger",
		TriggerReportRequest{OrganizationID: "org_1", PeriodDays: 30})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.producer.reportPayloads, 1)
	assert.Equal(t, 30, f.producer.reportPayloads[0].PeriodDays)
}

func TestTrigger_EmptyBodyEnqueuesFanOut(t *testing.T) {
	f := newReportsFixture(t)

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, f.producer.fanOuts)
	assert.Empty(t, f.producer.reportPayloads)

	var body struct {
		Data TriggerReportResponse `json:"data"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "job_fanout", body.Data.Job.ID)
}

func TestTrigger_UnknownOrg(t *testing.T) {
	f := newReportsFixture(t)

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger",
		TriggerReportRequest{OrganizationID: "org_missing"})

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body core.APIErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, string(types.ErrCodeNotFoundOrg), body.Error.Code)
}

func TestTrigger_InvalidPeriodDays(t *testing.T) {
	f := newReportsFixture(t)
	f.orgs.orgs["org_1"] = &types.ReportOrg{ID: "org_1"}

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger",
		TriggerReportRequest{OrganizationID: "org_1", PeriodDays: 999})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.producer.reportPayloads)
}

func TestTrigger_MalformedJSON(t *testing.T) {
	f := newReportsFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/reports/trigger", bytes.NewReader([]byte("{oops")))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrigger_EnqueueFailure(t *testing.T) {
	f := newReportsFixture(t)
	f.producer.err = errors.New("broker unreachable")

	rec := doJSON(t, f.router, http.MethodPost, "/reports/trigger", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body core.APIErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, string(types.ErrCodeUpstreamQueue), body.Error.Code)
}

// --- Status ---

func TestStatus(t *testing.T) {
	f := newReportsFixture(t)
	stale := handlerNow.Add(-5 * 24 * time.Hour)
	f.orgs.orgs["org_due"] = &types.ReportOrg{
		ID: "org_due", Name: "Due Clinic", AutoReportsEnabled: true,
		LastReportGeneratedAt: &stale,
	}
	f.stats.counts = queue.LaneCounts{Waiting: 2, Active: 1, Failed: 3}

	rec := doJSON(t, f.router, http.MethodGet, "/reports/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data ReportStatusResponse `json:"data"`
	}
	decodeBody(t, rec, &body)

	require.Len(t, body.Data.Organizations, 1)
	assert.True(t, body.Data.Organizations[0].NeedsReport)
	assert.Equal(t, 2, body.Data.Queue.Waiting)
	assert.Equal(t, 3, body.Data.Queue.Failed)
	assert.Equal(t, 3, body.Data.IntervalDays)
}

func TestStatus_QueueError(t *testing.T) {
	f := newReportsFixture(t)
	f.stats.err = errors.New("broker unreachable")

	rec := doJSON(t, f.router, http.MethodGet, "/reports/status", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatus_DBError(t *testing.T) {
	f := newReportsFixture(t)
	f.orgs.listErr = types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", nil)

	rec := doJSON(t, f.router, http.MethodGet, "/reports/status", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
