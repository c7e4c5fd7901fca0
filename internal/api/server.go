// Package api serves the read-only HQ admin API used by `hq watch`.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wg-federation/wg-federation/internal/eventstore"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// StateReader is what the API needs from the state manager.
type StateReader interface {
	Reload(ctx context.Context) (model.HQState, error)
}

// HealthFunc reports extra health checks, e.g. the last integrity check.
type HealthFunc func(ctx context.Context) []HealthCheck

// Options wires the server. Journal, History, Metrics and Health are optional.
type Options struct {
	Addr    string
	State   StateReader
	Journal eventstore.Store
	History *eventstore.ConfigurationHistoryProjection
	Metrics http.Handler
	Health  HealthFunc
	Logger  *slog.Logger
}

// Server represents the API server.
type Server struct {
	Addr    string
	router  *chi.Mux
	server  *http.Server
	opts    Options
	errors  *ferrors.HTTPErrorAdapter
	started time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		Addr:    opts.Addr,
		router:  chi.NewRouter(),
		opts:    opts,
		errors:  ferrors.NewHTTPErrorAdapter(opts.Logger),
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.opts.Logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	s.router.Get("/state", s.handleState)
	s.router.Get("/configurations", s.handleListConfigurations)
	s.router.Get("/configurations/{kind}/{name}", s.handleGetConfiguration)
	s.router.Get("/journal", s.handleJournal)
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.errors.WriteErrorResponse(w, r, err)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.State.Reload(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, st.Redacted())
}

// ConfigurationView is one configuration with its journaled history.
type ConfigurationView struct {
	Configuration model.WireguardConfiguration   `json:"configuration"`
	History       *eventstore.ConfigurationHistory `json:"history,omitempty"`
}

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.State.Reload(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	all := st.Redacted().AllConfigurations()
	views := make([]ConfigurationView, 0, len(all))
	for _, c := range all {
		views = append(views, s.view(c))
	}
	s.Success(w, http.StatusOK, views)
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseInterfaceKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")

	st, err := s.opts.State.Reload(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, ok := st.Configuration(kind, name)
	if !ok {
		s.fail(w, r, ferrors.NotFoundError("configuration not found").
			WithContext("kind", string(kind)).
			WithContext("name", name).
			Build())
		return
	}
	s.Success(w, http.StatusOK, s.view(c.Redacted()))
}

func (s *Server) view(c model.WireguardConfiguration) ConfigurationView {
	v := ConfigurationView{Configuration: c}
	if s.opts.History != nil {
		if h, ok := s.opts.History.Get(string(c.Kind), c.Name); ok {
			v.History = &h
		}
	}
	return v
}

// JournalEntry is the JSON form of one journaled event.
type JournalEntry struct {
	ID          int64             `json:"id"`
	OperationID string            `json:"operation_id"`
	Event       string            `json:"event"`
	Timestamp   time.Time         `json:"timestamp"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		s.fail(w, r, ferrors.NotFoundError("event journal is disabled").Build())
		return
	}

	var (
		entries []eventstore.Event
		err     error
	)
	if op := r.URL.Query().Get("operation"); op != "" {
		entries, err = s.opts.Journal.GetByOperationID(r.Context(), op)
	} else {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				s.fail(w, r, ferrors.ValidationError("limit must be a positive integer").WithContext("limit", raw).Build())
				return
			}
		}
		entries, err = s.opts.Journal.Recent(r.Context(), limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, ToJournalEntries(entries))
}

// ToJournalEntries converts store events to their JSON form.
func ToJournalEntries(in []eventstore.Event) []JournalEntry {
	out := make([]JournalEntry, 0, len(in))
	for _, e := range in {
		out = append(out, JournalEntry{
			ID:          e.ID(),
			OperationID: e.OperationID(),
			Event:       e.Type(),
			Timestamp:   e.Timestamp(),
			Payload:     json.RawMessage(e.Payload()),
			Metadata:    e.Metadata(),
		})
	}
	return out
}
