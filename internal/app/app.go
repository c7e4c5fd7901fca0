// Package app builds the HQ component graph from configuration.
//
// Every collaborator is constructed explicitly here and handed to its
// consumers; nothing is looked up at runtime.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/wg-federation/wg-federation/internal/config"
	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/crypto"
	"github.com/wg-federation/wg-federation/internal/events"
	"github.com/wg-federation/wg-federation/internal/eventstore"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/location"
	"github.com/wg-federation/wg-federation/internal/lock"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/metrics"
	"github.com/wg-federation/wg-federation/internal/model"
	"github.com/wg-federation/wg-federation/internal/notify"
	"github.com/wg-federation/wg-federation/internal/secrets"
	"github.com/wg-federation/wg-federation/internal/state"
	"github.com/wg-federation/wg-federation/internal/wgkeys"
	"github.com/wg-federation/wg-federation/internal/wireguard"
)

// Options tune how the graph is built. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// RootPassphraseCommand overrides secrets.root_passphrase_command.
	RootPassphraseCommand string
	// Runner executes the root passphrase command. Defaults to secrets.ShellRunner.
	Runner secrets.Runner
	// Keys defaults to wgkeys.WGTypesGenerator.
	Keys wgkeys.Generator
	// DisableJournal and DisableForwarding skip optional side channels even
	// when configured, e.g. for get-private-key which runs inside wg-quick.
	DisableJournal    bool
	DisableForwarding bool
}

// App is the wired HQ.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Finder     *location.Finder
	Codec      *configio.Codec
	Passphrase secrets.Resolver
	Dispatcher *events.Dispatcher
	Manager    *state.Manager
	Renderer   *wireguard.Renderer
	Registry   *prom.Registry
	Recorder   *metrics.PrometheusRecorder

	// Journal and History are nil when the journal is disabled.
	Journal eventstore.Store
	History *eventstore.ConfigurationHistoryProjection
	// Forwarder is nil when NATS forwarding is disabled or unreachable.
	Forwarder *notify.Forwarder

	closers []func() error
}

// New wires every component described by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Finder:   location.NewFinder(cfg.Paths.DataDir, cfg.Paths.WireguardDir, cfg.StateFormat()),
		Registry: prom.NewRegistry(),
	}
	a.Recorder = metrics.NewPrometheusRecorder(a.Registry)

	command := cfg.Secrets.RootPassphraseCommand
	if strings.TrimSpace(opts.RootPassphraseCommand) != "" {
		command = opts.RootPassphraseCommand
	}
	a.Passphrase = secrets.Resolver{
		Method:  cfg.Secrets.PrivateKeyRetrievalMethod,
		Command: command,
		EnvVar:  cfg.Secrets.RootPassphraseEnv,
		File:    cfg.Secrets.RootPassphraseFile,
		Run:     opts.Runner,
	}
	a.Codec = configio.NewCodec(cfg.StateFormat(), stateTransformers(ctx, cfg, a.Passphrase)...)

	a.Dispatcher = events.NewDispatcher()
	a.Dispatcher.SubscribeAll(events.LoggingHandler(logger))

	a.Renderer = wireguard.NewRenderer(logger)
	a.Renderer.Subscribe(a.Dispatcher)

	if config.Enabled(cfg.Journal.Enabled) && !opts.DisableJournal {
		if err := a.openJournal(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if cfg.NATS.Enabled && !opts.DisableForwarding {
		a.connectForwarder(ctx)
	}

	a.Manager = state.NewManager(state.Deps{
		Finder: a.Finder,
		Locker: lock.NewFileLocker(lock.WithLogger(logger), lock.WithRecorder(a.Recorder)),
		Loader: a.Codec,
		Saver:  a.Codec,
		Keys:   opts.Keys,
		Events: a.Dispatcher,
		Settings: state.GenerationSettings{
			Federation:            cfg.FederationSeed(),
			RetrievalMethod:       cfg.Secrets.PrivateKeyRetrievalMethod,
			RootPassphraseCommand: command,
			Binary:                state.DefaultBinary,
		},
		Logger:   logger,
		Recorder: a.Recorder,
	})

	return a, nil
}

// stateTransformers returns the byte envelopes around the encoded state:
// encryption first, then a signature over the result.
func stateTransformers(ctx context.Context, cfg *config.Config, r secrets.Resolver) []configio.Transformer {
	params := crypto.KDFParams{
		Time:      cfg.Secrets.KDF.Time,
		MemoryKiB: cfg.Secrets.KDF.MemoryKiB,
		Threads:   cfg.Secrets.KDF.Threads,
	}
	var out []configio.Transformer
	if config.Enabled(cfg.Secrets.EncryptState) {
		out = append(out, crypto.NewEncryptor(r.PassphraseFunc(ctx), params))
	}
	if config.Enabled(cfg.Secrets.SignState) {
		out = append(out, crypto.NewSigner(r.PassphraseFunc(ctx), params))
	}
	return out
}

func (a *App) openJournal(ctx context.Context) error {
	store, err := eventstore.NewSQLiteStore(a.Config.Journal.Path)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)

	history := eventstore.NewConfigurationHistoryProjection(store)
	if err := history.Rebuild(ctx); err != nil {
		return err
	}
	eventstore.NewJournal(store, history, a.Logger).Subscribe(a.Dispatcher)

	a.Journal = store
	a.History = history
	return nil
}

func (a *App) connectForwarder(ctx context.Context) {
	fwd, err := notify.Connect(a.Config.NATS,
		notify.WithLogger(a.Logger),
		notify.WithRecorder(a.Recorder),
	)
	if err != nil {
		a.Logger.WarnContext(ctx, "NATS forwarding disabled",
			slog.String("url", a.Config.NATS.URL),
			logfields.Error(err))
		return
	}
	fwd.Subscribe(a.Dispatcher)
	a.Forwarder = fwd
	a.closers = append(a.closers, func() error {
		fwd.Close()
		return nil
	})
}

// PrivateKey returns the private key of one configuration from the current state.
func (a *App) PrivateKey(ctx context.Context, kind model.InterfaceKind, name string) (string, error) {
	st, err := a.Manager.Reload(ctx)
	if err != nil {
		return "", err
	}
	c, ok := st.Configuration(kind, name)
	if !ok {
		return "", ferrors.NotFoundError("no such wireguard configuration").
			WithContext("kind", string(kind)).
			WithContext("name", name).
			Build()
	}
	if c.Interface.PrivateKey == "" {
		return "", ferrors.StateError("configuration has no private key").
			WithContext("kind", string(kind)).
			WithContext("name", name).
			Build()
	}
	return c.Interface.PrivateKey, nil
}

// MetricsHandler serves the app's Prometheus registry.
func (a *App) MetricsHandler() http.Handler {
	return metrics.HTTPHandler(a.Registry)
}

// Close releases the journal and the NATS connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
