package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, statusPath, r.URL.Path)
		switch r.URL.Query().Get("arenaId") {
		case "live":
			_, _ = w.Write([]byte(`{"exists":true,"status":"active"}`))
		case "gone":
			_, _ = w.Write([]byte(`{"exists":false,"status":null}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "", time.Second)

	st, err := c.Status(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, Status{Exists: true, Status: StatusActive}, st)

	st, err = c.Status(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, st.Exists)
	assert.Equal(t, ArenaStatus(""), st.Status)

	_, err = c.Status(context.Background(), "other")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestStatus_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", 0).Status(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFinalize_SendsBearerAndResults(t *testing.T) {
	var got engine.Results
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, finalizePath, r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	results := engine.Results{
		ArenaID:      "a1",
		EndReason:    engine.EndCompleted,
		Duration:     5,
		Participants: []engine.ResultParticipant{{ID: "p1", Username: "ann"}},
	}
	require.NoError(t, NewClient(srv.URL, "s3cret", time.Second).Finalize(context.Background(), results))

	assert.Equal(t, "a1", got.ArenaID)
	assert.Equal(t, engine.EndCompleted, got.EndReason)
	assert.Equal(t, 5, got.Duration)
	assert.Equal(t, results.Participants, got.Participants)
}

func TestFinalize_RequiresSecret(t *testing.T) {
	err := NewClient("http://registry.invalid", "", time.Second).Finalize(context.Background(), engine.Results{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReporter_LogsFailuresAndNeverPanics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zap.InfoLevel)
	rep := NewReporter(NewClient(srv.URL, "wrong", time.Second), zap.New(core))

	rep.Report(context.Background(), engine.Results{ArenaID: "a1", EndReason: engine.EndHostLeft})

	entries := logs.FilterMessage("registry rejected results").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusUnauthorized), fields["status"])
	assert.Equal(t, `{"error":"Unauthorized"}`, fields["body"])
	assert.Equal(t, "a1", fields["arenaId"])
}

func TestReporter_MissingConfig(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rep := NewReporter(NewClient("", "", 0), zap.New(core))

	rep.Report(context.Background(), engine.Results{ArenaID: "a1"})
	assert.Equal(t, 1, logs.FilterMessage("registry configuration missing (url or secret)").Len())
}

func TestReporter_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	core, logs := observer.New(zap.InfoLevel)
	rep := NewReporter(NewClient(url, "s", 200*time.Millisecond), zap.New(core))
	rep.Report(context.Background(), engine.Results{ArenaID: "a1"})

	assert.Equal(t, 1, logs.FilterMessage("failed to save results").Len())
}
