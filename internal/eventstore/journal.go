package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wg-federation/wg-federation/internal/events"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/model"
)

// Metadata keys written by Journal.
const (
	MetaKind = "kind"
	MetaName = "name"
)

// Journal appends every dispatched HQ event to a Store with secrets redacted.
// Append failures are logged and never veto the event.
type Journal struct {
	store      Store
	projection *ConfigurationHistoryProjection
	logger     *slog.Logger
}

// NewJournal returns a Journal writing to store. projection may be nil.
func NewJournal(store Store, projection *ConfigurationHistoryProjection, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, projection: projection, logger: logger}
}

// Subscribe registers the journal for every event.
func (j *Journal) Subscribe(d *events.Dispatcher) func() {
	return d.SubscribeAll(j.Handle)
}

// Handle is an events.Handler. It never replaces the payload.
func (j *Journal) Handle(ctx context.Context, evt events.Event, payload any) (any, error) {
	data, meta, err := Encode(payload)
	if err != nil {
		j.logger.WarnContext(ctx, "Skipping journal entry", logfields.Event(string(evt)), logfields.Error(err))
		return nil, nil
	}
	operationID := events.OperationIDFrom(ctx)
	if err := j.store.Append(ctx, operationID, string(evt), data, meta); err != nil {
		j.logger.WarnContext(ctx, "Failed to journal event", logfields.Event(string(evt)), logfields.Error(err))
		return nil, nil
	}
	if j.projection != nil {
		j.projection.Apply(&BaseEvent{
			EventOperationID: operationID,
			EventType:        string(evt),
			EventTimestamp:   j.projection.now(),
			EventPayload:     data,
			EventMetadata:    meta,
		})
	}
	return nil, nil
}

// Encode returns the redacted JSON form of an HQ event payload plus its metadata.
func Encode(payload any) ([]byte, map[string]string, error) {
	var meta map[string]string
	if c, ok := payload.(model.WireguardConfiguration); ok {
		meta = map[string]string{MetaKind: string(c.Kind), MetaName: c.Name}
	}
	data, err := json.Marshal(events.Redacted(payload))
	if err != nil {
		return nil, nil, wrap(ErrMarshalPayloadFailed, err)
	}
	return data, meta, nil
}
