package eventstore

import "time"

// Event is one journaled HQ event.
type Event interface {
	// ID returns the journal sequence number.
	ID() int64
	// OperationID correlates every event of one manager call.
	OperationID() string
	// Type returns the event name, e.g. STATE_UPDATED.
	Type() string
	// Timestamp returns when the event was journaled.
	Timestamp() time.Time
	// Payload returns the redacted event payload as JSON.
	Payload() []byte
	// Metadata returns optional event metadata.
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID          int64             `json:"id"`
	EventOperationID string            `json:"operation_id"`
	EventType        string            `json:"type"`
	EventTimestamp   time.Time         `json:"timestamp"`
	EventPayload     []byte            `json:"payload"`
	EventMetadata    map[string]string `json:"metadata,omitempty"`
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) OperationID() string         { return e.EventOperationID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
