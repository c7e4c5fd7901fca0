package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/wg-federation/wg-federation/internal/app"
	"github.com/wg-federation/wg-federation/internal/config"
	"github.com/wg-federation/wg-federation/internal/version"
)

// Global context passed to subcommands. Logger is replaced once the
// configuration has been loaded.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}" env:"WG_FEDERATION_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init InitCmd `cmd:"" help:"Write an example configuration file"`
	HQ   HQCmd   `cmd:"" name:"hq" help:"Manage the HQ state"`

	// Stdout receives command output. Defaults to os.Stdout.
	Stdout io.Writer `kong:"-"`
}

// Vars are the interpolation variables of the CLI model.
func Vars() kong.Vars {
	return kong.Vars{
		"version":     version.String(),
		"config_path": config.DefaultPath,
	}
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(os.Stderr, level, config.LogFormatText))
	return nil
}

func (c *CLI) out() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

// loadConfig reads the configuration and applies its logging section unless
// -v already forced debug output.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(os.Stderr, level, cfg.Logging.Format)
	slog.SetDefault(logger)
	if g != nil {
		g.Logger = logger
	}
	return cfg, nil
}

// openApp loads the configuration and wires the HQ. The caller closes the app.
func (c *CLI) openApp(ctx context.Context, g *Global, opts app.Options) (*app.App, error) {
	cfg, err := c.loadConfig(g)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return app.New(ctx, cfg, opts)
}

func newLogger(w io.Writer, level slog.Level, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("Failed to close HQ resources", "error", err)
	}
}
