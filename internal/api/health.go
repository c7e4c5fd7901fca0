package api

import (
	"context"
	"net/http"
	"time"

	"github.com/wg-federation/wg-federation/internal/version"
)

// HealthStatus represents the overall health of the HQ daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthResponse represents the complete health check response.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Checks    []HealthCheck `json:"checks"`
}

// PerformHealthChecks runs the state check plus any extra checks.
func (s *Server) PerformHealthChecks(ctx context.Context) HealthResponse {
	checks := []HealthCheck{s.checkState(ctx)}
	if s.opts.Health != nil {
		checks = append(checks, s.opts.Health(ctx)...)
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Version:   version.Version,
		Checks:    checks,
	}
}

func (s *Server) checkState(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Name: "state", Status: HealthStatusHealthy, LastChecked: start}
	if _, err := s.opts.State.Reload(ctx); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = err.Error()
	}
	check.Duration = time.Since(start)
	return check
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.PerformHealthChecks(r.Context())
	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
