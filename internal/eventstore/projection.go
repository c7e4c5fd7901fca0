// Package eventstore journals HQ events in SQLite and projects them into
// per-configuration history.
package eventstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wg-federation/wg-federation/internal/events"
)

// ConfigurationHistory summarizes the journaled life of one configuration.
type ConfigurationHistory struct {
	Kind            string    `json:"kind"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at,omitzero"`
	LastUpdatedAt   time.Time `json:"last_updated_at,omitzero"`
	Updates         int       `json:"updates"`
	LastOperationID string    `json:"last_operation_id"`
}

// ConfigurationHistoryProjection maintains an in-memory view of configuration
// history, reconstructed from events stored in the event store.
type ConfigurationHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	byKey    map[string]*ConfigurationHistory
	lastSync time.Time
	now      func() time.Time
}

// NewConfigurationHistoryProjection creates a projection backed by store.
func NewConfigurationHistoryProjection(store Store) *ConfigurationHistoryProjection {
	return &ConfigurationHistoryProjection{
		store: store,
		byKey: make(map[string]*ConfigurationHistory),
		now:   time.Now,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *ConfigurationHistoryProjection) Rebuild(ctx context.Context) error {
	all, err := p.store.GetRange(ctx, time.Time{}, p.now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byKey = make(map[string]*ConfigurationHistory)
	for _, e := range all {
		p.applyEventLocked(e)
	}
	p.lastSync = p.now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *ConfigurationHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(e)
}

func (p *ConfigurationHistoryProjection) applyEventLocked(e Event) {
	evt := events.Event(e.Type())
	if !evt.IsConfiguration() || evt.IsBefore() {
		return
	}
	kind, name := e.Metadata()[MetaKind], e.Metadata()[MetaName]
	if kind == "" || name == "" {
		return
	}

	key := kind + "/" + name
	h, ok := p.byKey[key]
	if !ok {
		h = &ConfigurationHistory{Kind: kind, Name: name}
		p.byKey[key] = h
	}
	switch {
	case strings.HasSuffix(string(evt), "_CREATED"):
		h.CreatedAt = e.Timestamp()
		h.LastUpdatedAt = time.Time{}
		h.Updates = 0
	case strings.HasSuffix(string(evt), "_UPDATED"):
		h.LastUpdatedAt = e.Timestamp()
		h.Updates++
	}
	h.LastOperationID = e.OperationID()
}

// Get returns the history of one configuration.
func (p *ConfigurationHistoryProjection) Get(kind, name string) (ConfigurationHistory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.byKey[kind+"/"+name]
	if !ok {
		return ConfigurationHistory{}, false
	}
	return *h, true
}

// All returns every known configuration history sorted by kind and name.
func (p *ConfigurationHistoryProjection) All() []ConfigurationHistory {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ConfigurationHistory, 0, len(p.byKey))
	for _, h := range p.byKey {
		out = append(out, *h)
	}
	slices.SortFunc(out, func(a, b ConfigurationHistory) int {
		if c := strings.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// LastSync returns when Rebuild last completed.
func (p *ConfigurationHistoryProjection) LastSync() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
