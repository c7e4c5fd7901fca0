package daemon

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wg-federation/wg-federation/internal/api"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/metrics"
	"github.com/wg-federation/wg-federation/internal/model"
	"github.com/wg-federation/wg-federation/internal/wireguard"
)

// StateReader reloads the HQ state.
type StateReader interface {
	Reload(ctx context.Context) (model.HQState, error)
}

// IntegrityReport is the outcome of one integrity check.
type IntegrityReport struct {
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
	// Err is set when the state itself could not be loaded, decrypted or verified.
	Err error `json:"-"`
	// Drifted lists rendered .conf files that are missing or differ from the state.
	Drifted  []string `json:"drifted,omitempty"`
	Repaired []string `json:"repaired,omitempty"`
}

// Healthy reports whether the state loaded and nothing is left drifted.
func (r IntegrityReport) Healthy() bool {
	return r.Err == nil && len(r.Drifted) == len(r.Repaired)
}

// IntegrityChecker reloads the state, which verifies its signature, and
// compares every rendered configuration with what the state says it should be.
type IntegrityChecker struct {
	state    StateReader
	renderer *wireguard.Renderer
	repair   bool
	logger   *slog.Logger
	recorder metrics.Recorder

	mu   sync.RWMutex
	last *IntegrityReport
}

// NewIntegrityChecker returns a checker. With repair set, drifted files are re-rendered.
func NewIntegrityChecker(state StateReader, renderer *wireguard.Renderer, repair bool, logger *slog.Logger, recorder metrics.Recorder) *IntegrityChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrityChecker{
		state:    state,
		renderer: renderer,
		repair:   repair,
		logger:   logger,
		recorder: metrics.OrNoop(recorder),
	}
}

// Check runs one integrity check and remembers its report.
func (c *IntegrityChecker) Check(ctx context.Context) IntegrityReport {
	start := time.Now()
	report := IntegrityReport{CheckedAt: start}
	defer func() {
		report.Duration = time.Since(start)
		c.mu.Lock()
		c.last = &report
		c.mu.Unlock()
	}()

	st, err := c.state.Reload(ctx)
	if err != nil {
		report.Err = err
		c.recorder.IncIntegrityCheck(metrics.ResultFor(err))
		c.logger.ErrorContext(ctx, "HQ state integrity check failed", logfields.Error(err))
		return report
	}

	for _, cfg := range st.AllConfigurations() {
		want, err := wireguard.Render(cfg)
		if err != nil {
			report.Drifted = append(report.Drifted, cfg.Path)
			continue
		}
		have, err := os.ReadFile(cfg.Path)
		if err == nil && bytes.Equal(have, want) {
			continue
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.WarnContext(ctx, "Cannot read rendered configuration", logfields.Path(cfg.Path), logfields.Error(err))
		}
		report.Drifted = append(report.Drifted, cfg.Path)
		if c.repair && c.renderer != nil {
			if err := c.renderer.Write(ctx, cfg); err != nil {
				c.logger.WarnContext(ctx, "Failed to repair configuration", logfields.Path(cfg.Path), logfields.Error(err))
				continue
			}
			report.Repaired = append(report.Repaired, cfg.Path)
		}
	}

	result := metrics.ResultSuccess
	if !report.Healthy() {
		result = metrics.ResultFailed
		c.logger.WarnContext(ctx, "Rendered WireGuard configurations drifted from HQ state",
			slog.Any("drifted", report.Drifted))
	}
	c.recorder.IncIntegrityCheck(result)
	return report
}

// Last returns the most recent report, if any.
func (c *IntegrityChecker) Last() (IntegrityReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return IntegrityReport{}, false
	}
	return *c.last, true
}

// HealthChecks adapts the last report to the admin API health endpoint.
func (c *IntegrityChecker) HealthChecks(context.Context) []api.HealthCheck {
	report, ok := c.Last()
	if !ok {
		return []api.HealthCheck{{Name: "integrity", Status: api.HealthStatusHealthy, Message: "not run yet"}}
	}
	check := api.HealthCheck{
		Name:        "integrity",
		Status:      api.HealthStatusHealthy,
		Duration:    report.Duration,
		LastChecked: report.CheckedAt,
	}
	switch {
	case report.Err != nil:
		check.Status = api.HealthStatusUnhealthy
		check.Message = report.Err.Error()
	case !report.Healthy():
		check.Status = api.HealthStatusDegraded
		check.Message = "rendered configurations drifted"
	}
	return []api.HealthCheck{check}
}
