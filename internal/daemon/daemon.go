// Package daemon runs `hq watch`: it keeps the rendered WireGuard
// configurations in step with the HQ state file, periodically verifies the
// state and serves the admin API.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/wg-federation/wg-federation/internal/api"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/wireguard"
)

// Options configures a Daemon. Server is optional.
type Options struct {
	StatePath              string
	State                  StateReader
	Renderer               *wireguard.Renderer
	Integrity              *IntegrityChecker
	Server                 *api.Server
	IntegrityCheckInterval time.Duration
	WatchDebounce          time.Duration
	RenderOnChange         bool
	Logger                 *slog.Logger
}

// Daemon owns the watcher, the scheduler and the admin server.
type Daemon struct {
	opts      Options
	logger    *slog.Logger
	watcher   *StateWatcher
	scheduler *Scheduler
}

// New builds a Daemon without starting anything.
func New(opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Daemon{opts: opts, logger: opts.Logger}

	if opts.RenderOnChange {
		w, err := NewStateWatcher(opts.StatePath, opts.WatchDebounce, d.render, opts.Logger)
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}
	if opts.Integrity != nil && opts.IntegrityCheckInterval > 0 {
		s, err := NewScheduler(opts.Logger)
		if err != nil {
			return nil, err
		}
		d.scheduler = s
	}
	return d, nil
}

// render reloads the state and re-renders every configuration.
func (d *Daemon) render(ctx context.Context) error {
	st, err := d.opts.State.Reload(ctx)
	if err != nil {
		return err
	}
	paths, err := d.opts.Renderer.WriteAll(ctx, st)
	if err != nil {
		return err
	}
	d.logger.InfoContext(ctx, "Re-rendered WireGuard configurations", slog.Int("count", len(paths)))
	return nil
}

// Run starts every component and blocks until ctx is done or the admin
// server fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.watcher != nil {
		if err := d.render(ctx); err != nil {
			d.logger.WarnContext(ctx, "Initial render failed", logfields.Error(err))
		}
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = d.watcher.Stop() }()
	}

	if d.scheduler != nil {
		if _, err := d.scheduler.ScheduleIntegrityCheck(ctx, d.opts.IntegrityCheckInterval, d.opts.Integrity); err != nil {
			return err
		}
		d.scheduler.Start()
		defer func() { _ = d.scheduler.Stop() }()
	}

	serverErr := make(chan error, 1)
	if d.opts.Server != nil {
		go func() {
			d.logger.Info("Admin API listening", slog.String("addr", d.opts.Server.Addr))
			if err := d.opts.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		d.logger.Error("Admin API failed", logfields.Error(err))
	}

	if d.opts.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := d.opts.Server.Shutdown(shutdownCtx); serr != nil {
			d.logger.Warn("Admin API shutdown failed", logfields.Error(serr))
		}
	}
	return err
}
