// Package hub routes events to arena actors. Actors are created on first use
// and retired when idle; each arena's socket list lives here so it outlives
// the actor that served it.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/alarm"
	"github.com/DoyleJ11/arena-sessions/internal/arena"
	"github.com/DoyleJ11/arena-sessions/internal/conns"
	"github.com/DoyleJ11/arena-sessions/internal/protocol"
	"github.com/DoyleJ11/arena-sessions/internal/store"
)

var ErrClosed = errors.New("hub closed")

const shardCount = 32

type Options struct {
	Store       store.Store
	Reporter    arena.Reporter
	Logger      *zap.Logger
	Clock       func() time.Time
	Policy      arena.TickPolicy
	IdleTimeout time.Duration
}

type Stats struct {
	Arenas  int `json:"arenas"`
	Actors  int `json:"actors"`
	Sockets int `json:"sockets"`
	Alarms  int `json:"alarms"`
}

type Hub struct {
	shards [shardCount]*shard
	opts   Options
	alarms *alarm.Scheduler
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		opts:   opts,
		logger: opts.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range h.shards {
		h.shards[i] = &shard{slots: make(map[string]*slot)}
	}
	h.alarms = alarm.New(opts.Store, h.alarmFired, opts.Logger)
	return h
}

func (h *Hub) shardFor(arenaID string) *shard {
	return h.shards[xxhash.Sum64String(arenaID)%shardCount]
}

// Deliver routes m to the actor for arenaID, starting one if needed.
func (h *Hub) Deliver(arenaID string, m arena.Msg) error {
	sh := h.shardFor(arenaID)
	sh.mu.Lock()
	if sh.closed {
		sh.mu.Unlock()
		return ErrClosed
	}
	sl := sh.slots[arenaID]
	if sl == nil {
		sl = &slot{sockets: conns.NewRegistry()}
		sh.slots[arenaID] = sl
	}
	if sl.actor == nil {
		sl.actor = h.spawn(arenaID, sl.sockets)
	}
	a := sl.actor
	a.Reserve()
	sh.mu.Unlock()

	a.Post(m)
	return nil
}

// Inspect returns a copy of the arena's state.
func (h *Hub) Inspect(ctx context.Context, arenaID string) (arena.View, error) {
	reply := make(chan arena.View, 1)
	if err := h.Deliver(arenaID, arena.Inspect{Reply: reply}); err != nil {
		return arena.View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return arena.View{}, ctx.Err()
	}
}

// Peek is Inspect for arenas that already exist: a live slot or a stored
// session. Unknown ids report false without starting an actor.
func (h *Hub) Peek(ctx context.Context, arenaID string) (arena.View, bool, error) {
	sh := h.shardFor(arenaID)
	sh.mu.Lock()
	_, live := sh.slots[arenaID]
	sh.mu.Unlock()

	if !live {
		_, err := h.opts.Store.Get(ctx, arenaID, arena.StateKey)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return arena.View{}, false, nil
		case err != nil:
			return arena.View{}, false, err
		}
	}
	v, err := h.Inspect(ctx, arenaID)
	if err != nil {
		return arena.View{}, false, err
	}
	return v, true, nil
}

func (h *Hub) Stats() Stats {
	var st Stats
	for _, sh := range h.shards {
		sh.mu.Lock()
		for _, sl := range sh.slots {
			st.Arenas++
			if sl.actor != nil {
				st.Actors++
			}
			st.Sockets += sl.sockets.Len()
		}
		sh.mu.Unlock()
	}
	st.Alarms = h.alarms.Len()
	return st
}

// RestoreAlarms re-arms wake-ups persisted by a previous process.
func (h *Hub) RestoreAlarms(ctx context.Context) (int, error) {
	return h.alarms.Restore(ctx)
}

// Shutdown stops every actor and closes every socket as going away. Stored
// sessions are left intact.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.alarms.Stop()

	var actors []*arena.Actor
	var sockets []*conns.Socket
	for _, sh := range h.shards {
		sh.mu.Lock()
		sh.closed = true
		for id, sl := range sh.slots {
			if sl.actor != nil {
				actors = append(actors, sl.actor)
			}
			sockets = append(sockets, sl.sockets.Sockets()...)
			delete(sh.slots, id)
		}
		sh.mu.Unlock()
	}

	for _, a := range actors {
		a.Send(arena.Shutdown{})
	}
	for _, s := range sockets {
		_ = s.Close(protocol.CloseGoingAway, "server shutting down")
	}

	defer h.cancel()
	for _, a := range actors {
		select {
		case <-a.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.logger.Info("hub stopped", zap.Int("actors", len(actors)), zap.Int("sockets", len(sockets)))
	return nil
}

func (h *Hub) spawn(arenaID string, sockets *conns.Registry) *arena.Actor {
	h.logger.Debug("actor started", zap.String("arenaId", arenaID))
	return arena.New(h.ctx, arenaID, arena.Deps{
		Store:       store.Scope(h.opts.Store, arenaID),
		Sockets:     sockets,
		Alarm:       h.alarms.For(arenaID),
		Reporter:    h.opts.Reporter,
		Logger:      h.opts.Logger,
		Clock:       h.opts.Clock,
		Policy:      h.opts.Policy,
		IdleTimeout: h.opts.IdleTimeout,
		Retire:      h.retire,
	})
}

// retire lets an idle actor exit when nothing is queued for it. The slot is
// dropped too once it holds no sockets.
func (h *Hub) retire(a *arena.Actor) bool {
	sh := h.shardFor(a.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sl := sh.slots[a.ID()]
	if sl == nil || sl.actor != a || a.Pending() > 0 {
		return false
	}
	sl.actor = nil
	if sl.sockets.Len() == 0 {
		delete(sh.slots, a.ID())
	}
	return true
}

func (h *Hub) alarmFired(arenaID string) {
	if err := h.Deliver(arenaID, arena.AlarmFired{}); err != nil {
		h.logger.Debug("alarm dropped", zap.String("arenaId", arenaID), zap.Error(err))
	}
}
