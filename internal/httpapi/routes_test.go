package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-sessions/internal/arena"
	"github.com/DoyleJ11/arena-sessions/internal/engine"
	"github.com/DoyleJ11/arena-sessions/internal/hub"
	"github.com/DoyleJ11/arena-sessions/internal/store"
	"github.com/DoyleJ11/arena-sessions/internal/ws"
)

func newServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	return newServerWith(t, store.NewMemory())
}

func newServerWith(t *testing.T, st store.Store) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Options{Store: st, IdleTimeout: time.Minute})
	srv := httptest.NewServer(SetupRoutes(h, nil, ws.Options{}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h, srv
}

func TestHealthz(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWSRequiresArenaID(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiagnostics(t *testing.T) {
	st := store.NewMemory()
	_, srv := newServerWith(t, st)

	// unknown arena: no actor is started
	resp, err := http.Get(srv.URL + "/diagnostics/arenas/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, stats(t, srv).Arenas)

	sess, err := engine.NewSession(engine.Config{
		ArenaID: "a1", Type: engine.TypeTyping, Mode: engine.ModeSolo,
		Prompt: "go", TimeLimit: 30, HostID: "p1",
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Scope(st, "a1").PutJSON(context.Background(), arena.StateKey, sess))

	resp, err = http.Get(srv.URL + "/diagnostics/arenas/a1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		ArenaID      string            `json:"arenaId"`
		Running      bool              `json:"running"`
		Sockets      int               `json:"sockets"`
		Participants []json.RawMessage `json:"participants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, "a1", view.ArenaID)
	assert.True(t, view.Running)
	assert.Zero(t, view.Sockets)
	assert.Empty(t, view.Participants)

	got := stats(t, srv)
	assert.Equal(t, 1, got.Arenas)
	assert.Equal(t, 1, got.Actors)
}

func stats(t *testing.T, srv *httptest.Server) hub.Stats {
	t.Helper()
	resp, err := http.Get(srv.URL + "/diagnostics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st hub.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func TestProtocolSchema(t *testing.T) {
	_, srv := newServer(t)
	resp, err := http.Get(srv.URL + "/protocol/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var doc struct {
		OneOf []struct {
			Title string `json:"title"`
		} `json:"oneOf"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	var titles []string
	for _, v := range doc.OneOf {
		titles = append(titles, v.Title)
	}
	assert.Contains(t, titles, "init")
	assert.Contains(t, titles, "canvas_update")
}
