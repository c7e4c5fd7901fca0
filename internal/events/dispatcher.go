package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
)

// Handler reacts to a dispatched event. Returning a nil payload keeps the current
// one; returning an error stops dispatch and is handed back to the caller.
type Handler func(ctx context.Context, evt Event, payload any) (any, error)

// Publisher is what the state manager needs from a dispatcher.
type Publisher interface {
	Dispatch(ctx context.Context, evt Event, payload any) (any, error)
}

// Dispatcher delivers events synchronously to handlers in registration order.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[Event]map[uint64]Handler
	all    map[uint64]Handler
	nextID atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subs: make(map[Event]map[uint64]Handler),
		all:  make(map[uint64]Handler),
	}
}

// Subscribe registers h for evt. The returned func removes the subscription.
func (d *Dispatcher) Subscribe(evt Event, h Handler) func() {
	id := d.nextID.Add(1)

	d.mu.Lock()
	if d.subs[evt] == nil {
		d.subs[evt] = make(map[uint64]Handler)
	}
	d.subs[evt][id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if typeSubs, ok := d.subs[evt]; ok {
				delete(typeSubs, id)
				if len(typeSubs) == 0 {
					delete(d.subs, evt)
				}
			}
		})
	}
}

// SubscribeAll registers h for every event.
func (d *Dispatcher) SubscribeAll(h Handler) func() {
	id := d.nextID.Add(1)

	d.mu.Lock()
	d.all[id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.all, id)
			d.mu.Unlock()
		})
	}
}

// SubscriberCount returns the number of handlers that would see evt.
//
// This is primarily intended for tests and diagnostics.
func (d *Dispatcher) SubscriberCount(evt Event) int {
	if d == nil {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[evt]) + len(d.all)
}

type orderedHandler struct {
	id uint64
	h  Handler
}

// Dispatch runs every handler registered for evt and returns the final payload.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event, payload any) (any, error) {
	if evt == "" {
		return nil, ferrors.ValidationError("event cannot be empty").Build()
	}
	if ctx == nil {
		return nil, ferrors.ValidationError("context cannot be nil").Build()
	}

	d.mu.RLock()
	targets := make([]orderedHandler, 0, len(d.subs[evt])+len(d.all))
	for id, h := range d.subs[evt] {
		targets = append(targets, orderedHandler{id, h})
	}
	for id, h := range d.all {
		targets = append(targets, orderedHandler{id, h})
	}
	d.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	for _, t := range targets {
		next, err := t.h(ctx, evt, payload)
		if err != nil {
			if ferrors.IsClassified(err) {
				return nil, err
			}
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "event handler failed").
				WithContext("event", string(evt)).
				Build()
		}
		if next != nil {
			payload = next
		}
	}
	return payload, nil
}

// Dispatch is the typed form of Publisher.Dispatch. A handler that substitutes a
// payload of a different type is reported as an internal error.
func Dispatch[T any](ctx context.Context, p Publisher, evt Event, payload T) (T, error) {
	out, err := p.Dispatch(ctx, evt, payload)
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		var zero T
		return zero, ferrors.InternalError("event handler returned unexpected payload type").
			WithContext("event", string(evt)).
			WithContext("expected", fmt.Sprintf("%T", payload)).
			WithContext("actual", fmt.Sprintf("%T", out)).
			Build()
	}
	return v, nil
}

// LoggingHandler logs every event at debug level and leaves the payload alone.
func LoggingHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, evt Event, _ any) (any, error) {
		attrs := []slog.Attr{logfields.Event(string(evt))}
		if id := OperationIDFrom(ctx); id != "" {
			attrs = append(attrs, logfields.OperationID(id))
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "HQ event dispatched", attrs...)
		return nil, nil
	}
}

type operationIDKey struct{}

// WithOperationID tags ctx so every event of one manager call shares an ID.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey{}, id)
}

// OperationIDFrom returns the operation ID carried by ctx, if any.
func OperationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(operationIDKey{}).(string)
	return id
}
