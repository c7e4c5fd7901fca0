package state

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/events"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/lock"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/metrics"
	"github.com/wg-federation/wg-federation/internal/model"
	"github.com/wg-federation/wg-federation/internal/wgkeys"
)

// ErrNotBootstrapped is returned by Reload when no state file exists yet.
// Match it with errors.Is.
var ErrNotBootstrapped = ferrors.NotFoundError("HQ state is not bootstrapped, run `wg-federation hq bootstrap` first").
	UserAction().
	Build()

// LocationFinder resolves the state file and rendered configuration paths.
type LocationFinder interface {
	State() string
	ConfigurationPath(kind model.InterfaceKind, name string) string
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Finder   LocationFinder
	Locker   lock.Locker
	Loader   configio.Loader
	Saver    configio.Saver
	Keys     wgkeys.Generator
	Events   events.Publisher
	Settings GenerationSettings

	Logger   *slog.Logger
	Recorder metrics.Recorder
	// NewOperationID defaults to uuid.NewString.
	NewOperationID func() string
}

// Manager implements the HQ state lifecycle.
type Manager struct {
	finder   LocationFinder
	locker   lock.Locker
	loader   configio.Loader
	saver    configio.Saver
	keys     wgkeys.Generator
	events   events.Publisher
	settings GenerationSettings
	logger   *slog.Logger
	recorder metrics.Recorder
	newID    func() string
}

// NewManager wires a Manager. Logger, Recorder and NewOperationID are optional.
func NewManager(d Deps) *Manager {
	m := &Manager{
		finder:   d.Finder,
		locker:   d.Locker,
		loader:   d.Loader,
		saver:    d.Saver,
		keys:     d.Keys,
		events:   d.Events,
		settings: d.Settings,
		logger:   d.Logger,
		recorder: metrics.OrNoop(d.Recorder),
		newID:    d.NewOperationID,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.keys == nil {
		m.keys = wgkeys.WGTypesGenerator{}
	}
	return m
}

// StatePath is the file this manager guards.
func (m *Manager) StatePath() string { return m.finder.State() }

// Reload reads the state under a shared lock and dispatches STATE_LOADED.
// A missing state file yields ErrNotBootstrapped; every other error is returned as is.
func (m *Manager) Reload(ctx context.Context) (_ model.HQState, err error) {
	if err := ctx.Err(); err != nil {
		return model.HQState{}, err
	}
	ctx = m.operation(ctx)
	defer m.observe(ctx, "reload", time.Now(), &err)

	path := m.finder.State()
	var loaded model.HQState
	err = m.locker.Shared(ctx, path, func(f *os.File) error {
		if err := m.loader.Load(f, &loaded); err != nil {
			return err
		}
		return loaded.Validate().ToError()
	})
	if err != nil {
		if lock.IsNotExist(err) {
			return model.HQState{}, ferrors.WrapError(err, ferrors.CategoryNotFound, ErrNotBootstrapped.Message()).
				UserAction().
				WithContext("path", path).
				Build()
		}
		return model.HQState{}, err
	}

	for _, kind := range model.Kinds() {
		m.recorder.SetConfigurations(string(kind), len(loaded.Configurations(kind)))
	}
	return m.dispatchState(ctx, events.StateLoaded, loaded)
}

// UpdateHQState deep-merges patch into the persisted state. The exclusive lock
// covers load, STATE_BEFORE_UPDATE, merge, validation and save; STATE_UPDATED
// fires after release with a fresh copy, which is returned.
func (m *Manager) UpdateHQState(ctx context.Context, patch model.StatePatch) (_ model.HQState, err error) {
	if err := ctx.Err(); err != nil {
		return model.HQState{}, err
	}
	ctx = m.operation(ctx)
	defer m.observe(ctx, "update", time.Now(), &err)

	var saved model.HQState
	err = m.locker.Exclusive(ctx, m.finder.State(), func(f *os.File) error {
		var current model.HQState
		if err := m.loader.Load(f, &current); err != nil {
			return err
		}
		current, err := m.dispatchState(ctx, events.StateBeforeUpdate, current)
		if err != nil {
			return err
		}

		merged := patch.ApplyTo(current)
		if err := merged.Validate().ToError(); err != nil {
			return err
		}
		if err := m.saver.Save(f, merged); err != nil {
			return err
		}
		saved = merged
		return nil
	})
	if err != nil {
		return model.HQState{}, err
	}

	m.logger.InfoContext(ctx, "HQ state updated", logfields.StatePath(m.finder.State()))
	return m.dispatchState(ctx, events.StateUpdated, saved.Clone())
}

// UpdateWireguardConfiguration merges patch into current, announces the change
// with the kind's CONFIGURATION_BEFORE_UPDATE and CONFIGURATION_UPDATED events,
// and persists it through exactly one UpdateHQState scoped to {kind: {name: ...}}.
func (m *Manager) UpdateWireguardConfiguration(ctx context.Context, patch model.ConfigurationPatch, current model.WireguardConfiguration) (_ model.WireguardConfiguration, err error) {
	if err := ctx.Err(); err != nil {
		return model.WireguardConfiguration{}, err
	}
	ctx = m.operation(ctx)
	defer m.observe(ctx, "update_configuration", time.Now(), &err)

	beforeUpdate, err := events.ConfigurationEvent(current.Kind, events.PhaseBeforeUpdate)
	if err != nil {
		return model.WireguardConfiguration{}, err
	}
	updated, err := events.ConfigurationEvent(current.Kind, events.PhaseUpdated)
	if err != nil {
		return model.WireguardConfiguration{}, err
	}

	next := patch.ApplyTo(current)
	if err := checkSameIdentity(current, next); err != nil {
		return model.WireguardConfiguration{}, err
	}
	next, err = dispatch(ctx, m, beforeUpdate, next)
	if err != nil {
		return model.WireguardConfiguration{}, err
	}
	if err := checkSameIdentity(current, next); err != nil {
		return model.WireguardConfiguration{}, err
	}
	if _, err := m.UpdateHQState(ctx, model.StatePatchForConfiguration(next)); err != nil {
		return model.WireguardConfiguration{}, err
	}

	m.logger.InfoContext(ctx, "WireGuard configuration updated",
		logfields.InterfaceKind(string(next.Kind)),
		logfields.InterfaceName(next.Name))
	return dispatch(ctx, m, updated, next.Clone())
}

// CreateHQState generates and persists a brand-new state: one configuration per
// kind with fresh keys. It overwrites any existing state without checking;
// callers must make sure none exists (see the bootstrap command's --force).
func (m *Manager) CreateHQState(ctx context.Context) (_ model.HQState, err error) {
	if err := ctx.Err(); err != nil {
		return model.HQState{}, err
	}
	ctx = m.operation(ctx)
	defer m.observe(ctx, "create", time.Now(), &err)

	generated := model.HQState{
		Federation: m.settings.Federation,
		Interfaces: map[string]model.WireguardConfiguration{},
		Forums:     map[string]model.WireguardConfiguration{},
		PhoneLines: map[string]model.WireguardConfiguration{},
	}
	for _, kind := range model.Kinds() {
		c, err := m.generateConfiguration(kind)
		if err != nil {
			return model.HQState{}, err
		}
		beforeCreate, err := events.ConfigurationEvent(kind, events.PhaseBeforeCreate)
		if err != nil {
			return model.HQState{}, err
		}
		if c, err = dispatch(ctx, m, beforeCreate, c); err != nil {
			return model.HQState{}, err
		}
		generated.Configurations(kind)[c.Name] = c
	}

	var saved model.HQState
	err = m.locker.ExclusiveCreate(ctx, m.finder.State(), func(f *os.File) error {
		st, err := m.dispatchState(ctx, events.StateBeforeCreate, generated)
		if err != nil {
			return err
		}
		if err := st.Validate().ToError(); err != nil {
			return err
		}
		if err := m.saver.Save(f, st); err != nil {
			return err
		}
		saved = st
		return nil
	})
	if err != nil {
		return model.HQState{}, err
	}
	m.logger.InfoContext(ctx, "HQ state created", logfields.StatePath(m.finder.State()))

	created, err := m.dispatchState(ctx, events.StateCreated, saved.Clone())
	if err != nil {
		return model.HQState{}, err
	}
	for _, kind := range []model.InterfaceKind{model.KindPhoneLine, model.KindForum, model.KindInterface} {
		evt, err := events.ConfigurationEvent(kind, events.PhaseCreated)
		if err != nil {
			return model.HQState{}, err
		}
		byName := saved.Configurations(kind)
		for _, name := range slices.Sorted(maps.Keys(byName)) {
			if _, err := dispatch(ctx, m, evt, byName[name].Clone()); err != nil {
				return model.HQState{}, err
			}
		}
	}
	return created, nil
}

// checkSameIdentity rejects updates that would move a configuration to another
// mapping entry, since the state patch is keyed by the current kind and name.
func checkSameIdentity(current, next model.WireguardConfiguration) error {
	if next.Name != current.Name || next.Kind != current.Kind {
		return ferrors.ValidationError("a configuration update cannot change its name or kind").
			WithContext("name", current.Name).
			WithContext("kind", string(current.Kind)).
			Build()
	}
	return next.Validate(string(current.Kind) + "." + current.Name).ToError()
}

func (m *Manager) dispatchState(ctx context.Context, evt events.Event, st model.HQState) (model.HQState, error) {
	return dispatch(ctx, m, evt, st)
}

func dispatch[T any](ctx context.Context, m *Manager, evt events.Event, payload T) (T, error) {
	m.recorder.IncEventDispatched(string(evt))
	return events.Dispatch(ctx, m.events, evt, payload)
}

// operation tags ctx with an operation ID unless an outer call already did.
func (m *Manager) operation(ctx context.Context) context.Context {
	if events.OperationIDFrom(ctx) != "" {
		return ctx
	}
	return events.WithOperationID(ctx, m.newID())
}

func (m *Manager) observe(ctx context.Context, op string, start time.Time, errp *error) {
	d := time.Since(start)
	m.recorder.ObserveOperationDuration(op, d)
	m.recorder.IncOperationResult(op, metrics.ResultFor(*errp))
	if *errp != nil {
		m.logger.DebugContext(ctx, "HQ state operation failed",
			logfields.Operation(op),
			logfields.OperationID(events.OperationIDFrom(ctx)),
			logfields.Error(*errp))
	}
}
