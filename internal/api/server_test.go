package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wg-federation/wg-federation/internal/eventstore"
	"github.com/wg-federation/wg-federation/internal/events"
	"github.com/wg-federation/wg-federation/internal/model"
)

type fakeState struct {
	st  model.HQState
	err error
}

func (f fakeState) Reload(context.Context) (model.HQState, error) { return f.st.Clone(), f.err }

func sampleState() model.HQState {
	forum := model.WireguardConfiguration{
		Name: "wgf-forum0",
		Kind: model.KindForum,
		Interface: model.WireguardInterface{
			Address:    []string{"10.10.101.1/24"},
			PrivateKey: "c2VjcmV0",
			PublicKey:  "cHVibGlj",
			ListenPort: 10101,
		},
		SharedPSK: "cHNr",
	}
	return model.HQState{
		Federation: model.Federation{Name: "wg-federation0"},
		Forums:     map[string]model.WireguardConfiguration{forum.Name: forum},
	}
}

func newTestServer(t *testing.T, state StateReader, store eventstore.Store) *Server {
	t.Helper()
	var history *eventstore.ConfigurationHistoryProjection
	if store != nil {
		history = eventstore.NewConfigurationHistoryProjection(store)
		require.NoError(t, history.Rebuild(t.Context()))
	}
	return NewServer(Options{
		Addr:    "127.0.0.1:0",
		State:   state,
		Journal: store,
		History: history,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics\n")) }),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fakeState{st: sampleState()}, nil)
	w := get(t, s, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "state", resp.Checks[0].Name)
}

func TestHealth_UnhealthyWhenStateUnreadable(t *testing.T) {
	s := newTestServer(t, fakeState{err: assert.AnError}, nil)
	w := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestState_IsRedacted(t *testing.T) {
	s := newTestServer(t, fakeState{st: sampleState()}, nil)
	w := get(t, s, "/state")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "c2VjcmV0")
	assert.NotContains(t, w.Body.String(), "cHNr")
	assert.Contains(t, w.Body.String(), "cHVibGlj")
}

func TestGetConfiguration(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := events.WithOperationID(context.Background(), "op-7")
	_, err = eventstore.NewJournal(store, nil, nil).Handle(ctx, events.ForumsConfigurationCreated, sampleState().Forums["wgf-forum0"])
	require.NoError(t, err)

	s := newTestServer(t, fakeState{st: sampleState()}, store)

	w := get(t, s, "/configurations/forums/wgf-forum0")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool              `json:"success"`
		Data    ConfigurationView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "<redacted>", resp.Data.Configuration.Interface.PrivateKey)
	require.NotNil(t, resp.Data.History)
	assert.Equal(t, "op-7", resp.Data.History.LastOperationID)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/configurations/forums/missing").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/configurations/routers/x").Code)
}

func TestListConfigurations(t *testing.T) {
	s := newTestServer(t, fakeState{st: sampleState()}, nil)
	w := get(t, s, "/configurations")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []ConfigurationView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Nil(t, resp.Data[0].History)
}

func TestJournal(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, op := range []string{"a", "b", "b"} {
		require.NoError(t, store.Append(t.Context(), op, "STATE_UPDATED", []byte(`{}`), nil))
	}
	s := newTestServer(t, fakeState{st: sampleState()}, store)

	var resp struct {
		Data []JournalEntry `json:"data"`
	}
	w := get(t, s, "/journal?operation=b")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 2)

	w = get(t, s, "/journal?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "b", resp.Data[0].OperationID)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/journal?limit=zero").Code)
}

func TestJournal_Disabled(t *testing.T) {
	s := newTestServer(t, fakeState{st: sampleState()}, nil)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/journal").Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, fakeState{st: sampleState()}, nil)
	w := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}
