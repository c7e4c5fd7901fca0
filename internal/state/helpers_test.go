package state

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/events"
	"github.com/wg-federation/wg-federation/internal/location"
	"github.com/wg-federation/wg-federation/internal/lock"
	"github.com/wg-federation/wg-federation/internal/model"
)

type harness struct {
	mgr        *Manager
	dispatcher *events.Dispatcher
	finder     *location.Finder
	codec      *configio.Codec
	saver      *countingSaver

	mu       sync.Mutex
	recorded []events.Event
}

type harnessOption func(*Deps)

func withSettings(s GenerationSettings) harnessOption {
	return func(d *Deps) { d.Settings = s }
}

func withCodec(c *configio.Codec) harnessOption {
	return func(d *Deps) {
		d.Loader = c
		d.Saver = c
	}
}

func defaultSettings() GenerationSettings {
	return GenerationSettings{
		Federation:      model.Federation{Name: "wg-federation0", InterfaceMinPort: 10100, ForumMinPort: 10101, PhoneLineMinPort: 11100},
		RetrievalMethod: model.RetrievalEnvVarOrFile,
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dispatcher: events.NewDispatcher(),
		finder:     location.NewFinder(filepath.Join(dir, "data"), filepath.Join(dir, "wireguard"), configio.FormatYAML),
	}
	h.codec = configio.NewCodecForPath(h.finder.State())

	deps := Deps{
		Finder:   h.finder,
		Locker:   lock.NewFileLocker(lock.WithLogger(discardLogger())),
		Loader:   h.codec,
		Saver:    h.codec,
		Events:   h.dispatcher,
		Settings: defaultSettings(),
		Logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.saver = &countingSaver{next: deps.Saver}
	deps.Saver = h.saver
	h.mgr = NewManager(deps)

	h.dispatcher.SubscribeAll(func(_ context.Context, evt events.Event, _ any) (any, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.recorded = append(h.recorded, evt)
		return nil, nil
	})
	return h
}

func (h *harness) seen() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.recorded...)
}

func (h *harness) resetEvents() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = nil
}

func (h *harness) stateBytes(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(h.finder.State())
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	return data
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSaver struct {
	next  configio.Saver
	saves atomic.Int32
}

func (c *countingSaver) Save(f *os.File, v any) error {
	c.saves.Add(1)
	return c.next.Save(f, v)
}

// slowSaver writes half of the document, pauses, then writes the rest, so an
// unlocked reader would see a truncated file.
type slowSaver struct {
	codec       *configio.Codec
	delay       time.Duration
	halfWritten chan struct{}
	once        sync.Once
}

func (s *slowSaver) Save(f *os.File, v any) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	half := len(data) / 2
	if _, err := f.WriteAt(data[:half], 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	s.once.Do(func() { close(s.halfWritten) })
	time.Sleep(s.delay)
	if _, err := f.WriteAt(data[half:], int64(half)); err != nil {
		return err
	}
	return f.Sync()
}
