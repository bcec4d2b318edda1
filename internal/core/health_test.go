package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func healthServer(probes ...HealthProbe) *Server {
	return &Server{HealthProbes: probes}
}

func runHealth(t *testing.T, s *Server) (int, healthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.HandleHealth(w, r)

	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	status, body := runHealth(t, healthServer())

	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != "healthy" {
		t.Errorf("status field = %q", body.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := healthServer(
		NamedProbe{ProbeName: "database", CheckFunc: func(ctx context.Context) error { return nil }},
		NamedProbe{ProbeName: "redis", CheckFunc: func(ctx context.Context) error { return nil }},
	)

	status, body := runHealth(t, s)

	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Components["database"].Status != "healthy" {
		t.Errorf("database = %+v", body.Components["database"])
	}
	if body.Components["redis"].Status != "healthy" {
		t.Errorf("redis = %+v", body.Components["redis"])
	}
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	s := healthServer(
		NamedProbe{ProbeName: "database", CheckFunc: func(ctx context.Context) error { return nil }},
		NamedProbe{ProbeName: "redis", CheckFunc: func(ctx context.Context) error {
			return errors.New("dial tcp: connection refused")
		}},
	)

	status, body := runHealth(t, s)

	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status field = %q", body.Status)
	}
	if body.Components["database"].Status != "healthy" {
		t.Errorf("database = %+v", body.Components["database"])
	}
	if body.Components["redis"].Status != "unhealthy" {
		t.Errorf("redis = %+v", body.Components["redis"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	s := healthServer(
		NamedProbe{ProbeName: "database", CheckFunc: func(ctx context.Context) error {
			panic("nil pool")
		}},
	)

	status, body := runHealth(t, s)

	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if body.Components["database"].Status != "unhealthy" {
		t.Errorf("database = %+v", body.Components["database"])
	}
}
