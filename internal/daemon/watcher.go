package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
)

// StateWatcher monitors the state file and calls onChange, debounced, after it
// is written, created or renamed into place.
type StateWatcher struct {
	statePath    string
	watcher      *fsnotify.Watcher
	onChange     func(ctx context.Context) error
	logger       *slog.Logger
	debounceTime time.Duration

	mu         sync.Mutex
	stopChan   chan struct{}
	reloadChan chan struct{}
	wg         sync.WaitGroup
}

// NewStateWatcher creates a watcher for statePath.
func NewStateWatcher(statePath string, debounce time.Duration, onChange func(ctx context.Context) error, logger *slog.Logger) (*StateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create file watcher").Build()
	}

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		_ = watcher.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to resolve state path").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StateWatcher{
		statePath:    absPath,
		watcher:      watcher,
		onChange:     onChange,
		logger:       logger,
		debounceTime: debounce,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
	}, nil
}

// Start begins monitoring. The directory is watched rather than the file so
// that atomic replacements are seen.
func (sw *StateWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	stateDir := filepath.Dir(sw.statePath)
	if err := sw.watcher.Add(stateDir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to watch state directory").
			WithContext("path", stateDir).
			Build()
	}

	sw.logger.Info("Starting state watcher", logfields.StatePath(sw.statePath))

	sw.wg.Add(2)
	go sw.watchLoop(ctx)
	go sw.reloadLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutines.
func (sw *StateWatcher) Stop() error {
	sw.mu.Lock()
	select {
	case <-sw.stopChan:
		sw.mu.Unlock()
		return nil
	default:
	}
	close(sw.stopChan)
	err := sw.watcher.Close()
	sw.mu.Unlock()

	sw.wg.Wait()
	return err
}

func (sw *StateWatcher) watchLoop(ctx context.Context) {
	defer sw.wg.Done()
	stateFile := filepath.Base(sw.statePath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != stateFile {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				sw.logger.Debug("State file change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				sw.trigger()
			case event.Has(fsnotify.Remove):
				sw.logger.Warn("State file removed", logfields.Path(event.Name))
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("State watcher error", logfields.Error(err))
		}
	}
}

func (sw *StateWatcher) reloadLoop(ctx context.Context) {
	defer sw.wg.Done()
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.reloadChan:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounceTime, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := sw.onChange(ctx); err != nil {
				sw.logger.Error("Failed to apply state change", logfields.Error(err))
			}
		}
	}
}

func (sw *StateWatcher) trigger() {
	select {
	case sw.reloadChan <- struct{}{}:
	default:
	}
}
