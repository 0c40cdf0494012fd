// Package arena is the per-arena actor. One goroutine owns the session for an
// arena id and handles every socket event, client message and alarm for it,
// one at a time.
package arena

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/conns"
	"github.com/DoyleJ11/arena-sessions/internal/engine"
	"github.com/DoyleJ11/arena-sessions/internal/store"
)

// StateKey holds the JSON-encoded engine.Session in the arena's namespace.
const StateKey = "state"

type Msg interface{ isArenaMsg() }

// Opened registers a freshly upgraded socket.
type Opened struct {
	Socket *conns.Socket
}

// Message is one text frame read from Socket.
type Message struct {
	Socket *conns.Socket
	Data   []byte
}

type Closed struct {
	Socket *conns.Socket
	Code   int
	Reason string
}

type AlarmFired struct{}

type Inspect struct {
	Reply chan View
}

type Shutdown struct{}

func (Opened) isArenaMsg()     {}
func (Message) isArenaMsg()    {}
func (Closed) isArenaMsg()     {}
func (AlarmFired) isArenaMsg() {}
func (Inspect) isArenaMsg()    {}
func (Shutdown) isArenaMsg()   {}

// View is a copy of the actor's state, safe to read from another goroutine.
type View struct {
	ArenaID      string
	Session      engine.Session
	Sockets      int
	Participants []conns.Identity
	Restored     bool // state was loaded from the store at start
}

// Alarm is the actor's single pending wake-up.
type Alarm interface {
	Set(ctx context.Context, at time.Time) error
	Delete(ctx context.Context) error
}

type Reporter interface {
	Report(ctx context.Context, results engine.Results)
}

type TickPolicy string

const (
	// TickInterval wakes every second and broadcasts the countdown.
	TickInterval TickPolicy = "interval"
	// TickDeadline wakes once, when time is up.
	TickDeadline TickPolicy = "deadline"
)

type Deps struct {
	Store    store.Scoped
	Sockets  *conns.Registry
	Alarm    Alarm
	Reporter Reporter
	Logger   *zap.Logger
	Clock    func() time.Time
	Policy   TickPolicy

	// Retire is asked whether the actor may exit after IdleTimeout without
	// events. Nil, or a non-positive timeout, keeps the actor alive.
	IdleTimeout time.Duration
	Retire      func(*Actor) bool
}

type Actor struct {
	id    string
	inbox chan Msg
	deps  Deps

	// only touched by the loop goroutine
	session  engine.Session
	restored bool

	pending atomic.Int64
	done    chan struct{}
	log     *zap.Logger
	tracer  trace.Tracer
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the actor for arenaID. Its first act is to reload any stored
// session; messages queue until that completes.
func New(parent context.Context, arenaID string, deps Deps) *Actor {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Policy == "" {
		deps.Policy = TickInterval
	}
	if deps.Sockets == nil {
		deps.Sockets = conns.NewRegistry()
	}

	a := &Actor{
		id:     arenaID,
		inbox:  make(chan Msg, 64),
		deps:   deps,
		done:   make(chan struct{}),
		log:    deps.Logger.Named("arena").With(zap.String("arenaId", arenaID)),
		tracer: otel.Tracer("github.com/DoyleJ11/arena-sessions/internal/arena"),
		ctx:    ctx,
		cancel: cancel,
	}
	go a.loop()
	return a
}

func (a *Actor) ID() string { return a.id }

// Reserve counts a message that is about to be posted. A reserved actor is
// never retired.
func (a *Actor) Reserve() { a.pending.Add(1) }

// Post enqueues m. The caller must have called Reserve.
func (a *Actor) Post(m Msg) { a.inbox <- m }

// Send is Reserve followed by Post.
func (a *Actor) Send(m Msg) {
	a.Reserve()
	a.Post(m)
}

// Pending is the number of reserved messages not yet handled.
func (a *Actor) Pending() int64 { return a.pending.Load() }

// Done is closed once the loop has exited.
func (a *Actor) Done() <-chan struct{} { return a.done }

func (a *Actor) loop() {
	defer close(a.done)
	defer a.cancel()

	a.restore()

	var idle <-chan time.Time
	var timer *time.Timer
	if a.deps.IdleTimeout > 0 && a.deps.Retire != nil {
		timer = time.NewTimer(a.deps.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-a.ctx.Done():
			return

		case <-idle:
			if a.deps.Retire(a) {
				a.log.Debug("actor retired")
				return
			}
			timer.Reset(a.deps.IdleTimeout)

		case m := <-a.inbox:
			stop := a.handle(m)
			a.pending.Add(-1)
			if stop {
				return
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(a.deps.IdleTimeout)
			}
		}
	}
}

func (a *Actor) handle(m Msg) (stop bool) {
	switch msg := m.(type) {
	case Opened:
		a.deps.Sockets.Accept(msg.Socket)
		a.log.Info("socket accepted",
			zap.String("socket", msg.Socket.ID()),
			zap.Int("activeConnections", a.deps.Sockets.Len()))

	case Message:
		a.onMessage(msg.Socket, msg.Data)

	case Closed:
		a.onClose(msg.Socket, msg.Code, msg.Reason)

	case AlarmFired:
		a.onAlarm()

	case Inspect:
		msg.Reply <- a.view()

	case Shutdown:
		return true
	}
	return false
}

// restore is the rehydration barrier: it runs before the first message.
func (a *Actor) restore() {
	var s engine.Session
	err := a.deps.Store.GetJSON(a.ctx, StateKey, &s)
	switch {
	case err == nil:
		a.session = s
		a.restored = true
		a.log.Debug("session restored", zap.Bool("running", s.Running()))
	case errors.Is(err, store.ErrNotFound):
	default:
		a.log.Error("failed to load session, starting uninitialized", zap.Error(err))
	}
}

func (a *Actor) persist() {
	if err := a.deps.Store.PutJSON(a.ctx, StateKey, a.session); err != nil {
		a.log.Error("failed to persist session", zap.Error(err))
	}
}

func (a *Actor) view() View {
	v := View{
		ArenaID:      a.id,
		Sockets:      a.deps.Sockets.Len(),
		Participants: a.deps.Sockets.Identities(),
		Restored:     a.restored,
	}
	// deep copy through the stored form so the caller never shares maps
	b, err := a.session.MarshalJSON()
	if err != nil {
		a.log.Warn("failed to copy session for view", zap.Error(err))
		return v
	}
	if err := v.Session.UnmarshalJSON(b); err != nil {
		a.log.Warn("failed to copy session for view", zap.Error(err))
	}
	return v
}
