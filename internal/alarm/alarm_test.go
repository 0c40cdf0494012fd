package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

func recvFire(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alarm")
		return ""
	}
}

func noFire(t *testing.T, ch <-chan string, d time.Duration) {
	t.Helper()
	select {
	case id := <-ch:
		t.Fatalf("unexpected alarm for %s", id)
	case <-time.After(d):
	}
}

func newScheduler(st store.Store) (*Scheduler, chan string) {
	fires := make(chan string, 8)
	return New(st, func(id string) { fires <- id }, nil), fires
}

func TestSetFiresOnce(t *testing.T) {
	s, fires := newScheduler(store.NewMemory())
	require.NoError(t, s.Set(context.Background(), "a1", time.Now().Add(20*time.Millisecond)))

	assert.Equal(t, "a1", recvFire(t, fires))
	noFire(t, fires, 50*time.Millisecond)
	assert.Equal(t, 0, s.Len())
}

func TestSetReplacesPending(t *testing.T) {
	s, fires := newScheduler(store.NewMemory())
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a1", time.Now().Add(20*time.Millisecond)))
	later := time.Now().Add(80 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "a1", later))

	at, ok := s.Pending("a1")
	require.True(t, ok)
	assert.Equal(t, later, at)

	noFire(t, fires, 40*time.Millisecond)
	assert.Equal(t, "a1", recvFire(t, fires))
	noFire(t, fires, 50*time.Millisecond)
}

func TestDeleteCancelsAndForgets(t *testing.T) {
	st := store.NewMemory()
	s, fires := newScheduler(st)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a1", time.Now().Add(20*time.Millisecond)))
	require.NoError(t, s.Delete(ctx, "a1"))

	noFire(t, fires, 60*time.Millisecond)
	_, err := st.Get(ctx, "a1", StoreKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStaleFireIsDropped(t *testing.T) {
	s, fires := newScheduler(store.NewMemory())
	s.arm("a1", time.Now().Add(time.Hour))
	gen := s.pending["a1"].gen
	s.arm("a1", time.Now().Add(time.Hour))

	s.fired("a1", gen)
	noFire(t, fires, 10*time.Millisecond)
	assert.Equal(t, 1, s.Len())
	s.Stop()
}

func TestRestoreRearmsPersistedDeadlines(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first, _ := newScheduler(st)
	require.NoError(t, first.Set(ctx, "past", time.Now().Add(-time.Second)))
	require.NoError(t, first.Set(ctx, "soon", time.Now().Add(30*time.Millisecond)))
	first.Stop()
	require.NoError(t, st.Put(ctx, "broken", StoreKey, []byte(`"nope"`)))

	second, fires := newScheduler(st)
	n, err := second.Restore(ctx)
	assert.Error(t, err)
	assert.Equal(t, 2, n)

	got := map[string]bool{recvFire(t, fires): true, recvFire(t, fires): true}
	assert.Equal(t, map[string]bool{"past": true, "soon": true}, got)
}

func TestHandleIsScoped(t *testing.T) {
	st := store.NewMemory()
	s, fires := newScheduler(st)
	h := s.For("a9")
	ctx := context.Background()

	require.NoError(t, h.Set(ctx, time.Now().Add(10*time.Millisecond)))
	assert.Equal(t, "a9", recvFire(t, fires))

	require.NoError(t, h.Delete(ctx))
	_, err := st.Get(ctx, "a9", StoreKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStopIgnoresLaterSets(t *testing.T) {
	s, fires := newScheduler(store.NewMemory())
	s.Stop()
	require.NoError(t, s.Set(context.Background(), "a1", time.Now()))
	noFire(t, fires, 30*time.Millisecond)
}
