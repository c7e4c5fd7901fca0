package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/wg-federation/wg-federation/internal/api"
	"github.com/wg-federation/wg-federation/internal/app"
	"github.com/wg-federation/wg-federation/internal/config"
	"github.com/wg-federation/wg-federation/internal/daemon"
)

// WatchCmd implements 'hq watch'.
type WatchCmd struct {
	AdminAddr string `name:"admin-addr" help:"Admin API listen address (overrides daemon.admin_addr)"`
	NoRepair  bool   `name:"no-repair" help:"Report drifted configurations without rewriting them"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := root.openApp(ctx, g, app.Options{})
	if err != nil {
		return err
	}
	defer closeApp(a)

	cfg := a.Config
	addr := cfg.Daemon.AdminAddr
	if w.AdminAddr != "" {
		addr = w.AdminAddr
	}

	checker := daemon.NewIntegrityChecker(a.Manager, a.Renderer, !w.NoRepair, a.Logger, a.Recorder)
	server := api.NewServer(api.Options{
		Addr:    addr,
		State:   a.Manager,
		Journal: a.Journal,
		History: a.History,
		Metrics: a.MetricsHandler(),
		Health:  checker.HealthChecks,
		Logger:  a.Logger,
	})

	d, err := daemon.New(daemon.Options{
		StatePath:              a.Finder.State(),
		State:                  a.Manager,
		Renderer:               a.Renderer,
		Integrity:              checker,
		Server:                 server,
		IntegrityCheckInterval: cfg.Daemon.IntegrityCheckInterval,
		WatchDebounce:          cfg.Daemon.WatchDebounce,
		RenderOnChange:         config.Enabled(cfg.Daemon.RenderOnChange),
		Logger:                 a.Logger,
	})
	if err != nil {
		return err
	}

	a.Logger.Info("Starting HQ watch", "state_path", a.Finder.State(), "admin_addr", addr)
	return d.Run(ctx)
}
