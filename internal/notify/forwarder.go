// Package notify forwards committed HQ events to NATS so that forums and phone
// lines elsewhere in the federation can react to them.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wg-federation/wg-federation/internal/config"
	"github.com/wg-federation/wg-federation/internal/events"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/logfields"
	"github.com/wg-federation/wg-federation/internal/metrics"
	"github.com/wg-federation/wg-federation/internal/retry"
)

// Conn is the subset of *nats.Conn the forwarder uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Message is the JSON body published for every forwarded event.
type Message struct {
	Event       string          `json:"event"`
	OperationID string          `json:"operation_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// Forwarder publishes after-events to <prefix>.<event subject>. Before-events
// are never forwarded since they may still be vetoed.
type Forwarder struct {
	conn     Conn
	prefix   string
	timeout  time.Duration
	logger   *slog.Logger
	recorder metrics.Recorder
	retry    retry.Policy
	now      func() time.Time
}

// Option customizes a Forwarder.
type Option func(*Forwarder)

func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(f *Forwarder) { f.recorder = metrics.OrNoop(r) }
}

// WithTimeout bounds the flush after each publish.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRetry retries failed publishes. The default is a single attempt.
func WithRetry(p retry.Policy) Option {
	return func(f *Forwarder) { f.retry = p }
}

// NewForwarder wraps an established connection.
func NewForwarder(conn Conn, prefix string, opts ...Option) *Forwarder {
	f := &Forwarder{
		conn:     conn,
		prefix:   prefix,
		timeout:  5 * time.Second,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect dials the configured NATS server.
func Connect(cfg config.NATSConfig, opts ...Option) (*Forwarder, error) {
	if !cfg.Enabled {
		return nil, ferrors.ConfigError("NATS forwarding is disabled").Build()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("wg-federation-hq"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.URL).
			Retryable().
			Build()
	}
	defaults := []Option{WithTimeout(cfg.Timeout), WithRetry(retry.FromConfig(cfg.Retry))}
	return NewForwarder(conn, cfg.SubjectPrefix, append(defaults, opts...)...), nil
}

// Subject returns the NATS subject evt is published on.
func (f *Forwarder) Subject(evt events.Event) string {
	if f.prefix == "" {
		return evt.Subject()
	}
	return f.prefix + "." + evt.Subject()
}

// Subscribe registers the forwarder for every event.
func (f *Forwarder) Subscribe(d *events.Dispatcher) func() {
	return d.SubscribeAll(f.Handle)
}

// Handle is an events.Handler. Publish failures are logged and counted but
// never returned, so a broker outage cannot fail a committed state change.
func (f *Forwarder) Handle(ctx context.Context, evt events.Event, payload any) (any, error) {
	if evt.IsBefore() {
		return nil, nil
	}
	if err := f.publish(ctx, evt, payload); err != nil {
		f.recorder.IncEventForwarded(false)
		f.logger.WarnContext(ctx, "Failed to forward event",
			logfields.Event(string(evt)),
			logfields.Subject(f.Subject(evt)),
			logfields.Error(err))
		return nil, nil
	}
	f.recorder.IncEventForwarded(true)
	return nil, nil
}

func (f *Forwarder) publish(ctx context.Context, evt events.Event, payload any) error {
	body, err := json.Marshal(events.Redacted(payload))
	if err != nil {
		return err
	}
	operationID := events.OperationIDFrom(ctx)
	data, err := json.Marshal(Message{
		Event:       string(evt),
		OperationID: operationID,
		Timestamp:   f.now().UTC(),
		Payload:     body,
	})
	if err != nil {
		return err
	}

	msg := nats.NewMsg(f.Subject(evt))
	msg.Data = data
	if operationID != "" {
		msg.Header.Set(nats.MsgIdHdr, operationID+":"+string(evt))
	}
	err = f.retry.Do(ctx, func() error {
		if err := f.conn.PublishMsg(msg); err != nil {
			return err
		}
		return f.conn.FlushTimeout(f.timeout)
	})
	if err != nil {
		return err
	}
	f.logger.DebugContext(ctx, "Forwarded event", logfields.Event(string(evt)), logfields.Subject(msg.Subject))
	return nil
}

// Close closes the NATS connection.
func (f *Forwarder) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}
