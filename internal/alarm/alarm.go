// Package alarm keeps at most one pending wake-up per arena. Deadlines are
// written to the session store so they survive a process restart.
package alarm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

// StoreKey is the per-arena key holding the pending deadline (unix ms).
const StoreKey = "alarm"

// FireFunc is called from a timer goroutine when an arena's alarm is due.
type FireFunc func(arenaID string)

type entry struct {
	timer *time.Timer
	gen   uint64
	at    time.Time
}

type Scheduler struct {
	mu      sync.Mutex
	pending map[string]entry
	gen     uint64
	stopped bool

	store  store.Store
	fire   FireFunc
	logger *zap.Logger
}

func New(st store.Store, fire FireFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pending: make(map[string]entry),
		store:   st,
		fire:    fire,
		logger:  logger.Named("alarm"),
	}
}

// Set persists at and arms the wake-up, replacing any earlier one.
func (s *Scheduler) Set(ctx context.Context, arenaID string, at time.Time) error {
	b, err := json.Marshal(at.UnixMilli())
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, arenaID, StoreKey, b); err != nil {
		return fmt.Errorf("persist alarm: %w", err)
	}
	s.arm(arenaID, at)
	return nil
}

// Delete disarms the wake-up and forgets the stored deadline.
func (s *Scheduler) Delete(ctx context.Context, arenaID string) error {
	s.disarm(arenaID)
	if err := s.store.Delete(ctx, arenaID, StoreKey); err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	return nil
}

// Pending reports the armed deadline for arenaID.
func (s *Scheduler) Pending(arenaID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[arenaID]
	return e.at, ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Restore re-arms every deadline found in the store. Deadlines already in the
// past fire immediately.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	stored, err := s.store.Scan(ctx, StoreKey)
	if err != nil {
		return 0, fmt.Errorf("scan alarms: %w", err)
	}
	var errs error
	n := 0
	for arenaID, b := range stored {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("alarm %s: %w", arenaID, err))
			continue
		}
		s.arm(arenaID, time.UnixMilli(ms))
		n++
	}
	return n, errs
}

// Stop disarms everything without touching the store.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, id)
	}
}

// For binds the scheduler to one arena.
func (s *Scheduler) For(arenaID string) Handle {
	return Handle{s: s, arenaID: arenaID}
}

func (s *Scheduler) arm(arenaID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.pending[arenaID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	t := time.AfterFunc(time.Until(at), func() { s.fired(arenaID, gen) })
	s.pending[arenaID] = entry{timer: t, gen: gen, at: at}
}

func (s *Scheduler) disarm(arenaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.pending[arenaID]; ok {
		e.timer.Stop()
		delete(s.pending, arenaID)
	}
}

func (s *Scheduler) fired(arenaID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.pending[arenaID]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		// replaced or deleted after the timer had already started
		s.logger.Debug("stale alarm dropped", zap.String("arenaId", arenaID))
		return
	}
	delete(s.pending, arenaID)
	s.mu.Unlock()

	if s.fire != nil {
		s.fire(arenaID)
	}
}

// Handle is a Scheduler scoped to one arena id.
type Handle struct {
	s       *Scheduler
	arenaID string
}

func (h Handle) Set(ctx context.Context, at time.Time) error {
	return h.s.Set(ctx, h.arenaID, at)
}

func (h Handle) Delete(ctx context.Context) error {
	return h.s.Delete(ctx, h.arenaID)
}
