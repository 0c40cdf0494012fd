package arena

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/conns"
	"github.com/DoyleJ11/arena-sessions/internal/engine"
	"github.com/DoyleJ11/arena-sessions/internal/protocol"
)

const (
	msgInvalidFormat   = "Invalid message format"
	msgUnknownType     = "Unknown message type"
	msgNotInitialized  = "Arena not initialized"
	msgInvalidConfig   = "Invalid arena config"
	msgMissingUser     = "userId required"
	msgWrongArenaType  = "Action not supported for this arena"
	msgInvalidPayload  = "Invalid payload"
	reasonInitRequired = "Initialization required"
	reasonPlayerLeft   = "Player left"
)

func (a *Actor) onMessage(sock *conns.Socket, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		a.log.Warn("bad client frame", zap.String("socket", sock.ID()), zap.Error(err))
		if errors.Is(err, protocol.ErrUnknownType) {
			a.reject(sock, msgUnknownType)
		} else {
			a.reject(sock, msgInvalidFormat)
		}
		return
	}
	msg.Visit(inbound{a: a, from: sock})
}

// inbound dispatches one decoded client message from one socket.
type inbound struct {
	a    *Actor
	from *conns.Socket
}

var _ protocol.ClientVisitor = inbound{}

func (in inbound) Init(m protocol.Init) {
	a := in.a
	if m.UserID == "" {
		a.reject(in.from, msgMissingUser)
		return
	}

	if a.session.Config == nil {
		if m.Config == nil {
			a.send(in.from, protocol.Error{Message: msgNotInitialized})
			_ = in.from.Close(protocol.CloseProtocolError, reasonInitRequired)
			return
		}
		if err := a.start(*m.Config); err != nil {
			a.log.Warn("rejected arena config", zap.String("userId", m.UserID), zap.Error(err))
			a.reject(in.from, msgInvalidConfig)
			return
		}
	}

	id := conns.Identity{
		ParticipantID: m.UserID,
		Username:      m.Username,
		JoinedAt:      a.deps.Clock().UnixMilli(),
	}
	if err := in.from.SerializeAttachment(id); err != nil {
		a.log.Error("failed to attach identity", zap.Error(err))
		return
	}
	a.log.Info("player joined",
		zap.String("userId", id.ParticipantID),
		zap.String("username", id.Username),
		zap.Int("activeConnections", a.deps.Sockets.Len()))

	a.send(in.from, protocol.State{
		Participants:  a.participants(),
		Data:          a.session.Data,
		TimeRemaining: engine.TimeRemaining(a.session, a.deps.Clock()),
	})
	a.broadcast(protocol.ParticipantJoined{Participant: toParticipant(id)}, in.from)
}

func (in inbound) Leave(protocol.Leave) {
	_ = in.from.Close(protocol.CloseNormal, reasonPlayerLeft)
}

func (in inbound) Cursor(m protocol.Cursor)             { in.action(m) }
func (in inbound) CanvasUpdate(m protocol.CanvasUpdate) { in.action(m) }
func (in inbound) CodeUpdate(m protocol.CodeUpdate)     { in.action(m) }
func (in inbound) Run(m protocol.Run)                   { in.action(m) }
func (in inbound) Progress(m protocol.Progress)         { in.action(m) }

func (in inbound) action(m protocol.ClientMsg) {
	a := in.a
	id, ok := in.from.Identity()
	if !ok {
		a.log.Debug("action before init ignored", zap.String("socket", in.from.ID()))
		return
	}
	cmd, ok := protocol.ToCommand(m)
	if !ok {
		return
	}

	evt, next, err := engine.Apply(a.session, id.ParticipantID, cmd)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrNotInitialized):
		a.log.Debug("action on idle arena ignored", zap.String("action", string(cmd.Type)))
		return
	case errors.Is(err, engine.ErrWrongArenaType):
		a.reject(in.from, msgWrongArenaType)
		return
	default:
		a.log.Warn("action rejected", zap.String("action", string(cmd.Type)), zap.Error(err))
		a.reject(in.from, msgInvalidPayload)
		return
	}

	a.session = next
	a.persist()
	if out, ok := protocol.FromEvent(evt); ok {
		a.broadcast(out, in.from)
	}
}

// start fixes the config and arms the first wake-up.
func (a *Actor) start(cfg engine.Config) error {
	if cfg.ArenaID != a.id {
		return fmt.Errorf("%w: arenaId %q does not match %q", engine.ErrInvalidConfig, cfg.ArenaID, a.id)
	}
	s, err := engine.NewSession(cfg, a.deps.Clock())
	if err != nil {
		return err
	}
	a.session = s
	a.persist()
	a.armAlarm()
	a.log.Info("arena started",
		zap.String("type", string(cfg.Type)),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("timeLimit", cfg.TimeLimit))
	return nil
}

func (a *Actor) armAlarm() {
	at := engine.Deadline(a.session)
	if a.deps.Policy == TickInterval {
		at = engine.NextTick(a.session, a.deps.Clock())
	}
	if err := a.deps.Alarm.Set(a.ctx, at); err != nil {
		a.log.Error("failed to set alarm", zap.Error(err))
	}
}

func (a *Actor) onAlarm() {
	if !a.session.Running() {
		a.log.Debug("alarm after termination ignored")
		if err := a.deps.Alarm.Delete(a.ctx); err != nil {
			a.log.Warn("failed to clear alarm", zap.Error(err))
		}
		return
	}

	if a.deps.Policy == TickDeadline {
		a.finalize(engine.EndCompleted)
		return
	}

	remaining := engine.TimeRemaining(a.session, a.deps.Clock())
	a.broadcast(protocol.Tick{TimeRemaining: remaining}, nil)
	if remaining <= 0 {
		a.finalize(engine.EndCompleted)
		return
	}
	a.armAlarm()
}

func (a *Actor) onClose(sock *conns.Socket, code int, reason string) {
	if !a.deps.Sockets.Remove(sock) {
		return
	}

	id, ok := sock.Identity()
	if ok {
		a.log.Info("player left",
			zap.String("userId", id.ParticipantID),
			zap.String("username", id.Username),
			zap.Int("code", code),
			zap.String("reason", reason))
		a.broadcast(protocol.ParticipantLeft{ParticipantID: id.ParticipantID}, sock)
	}

	if !a.session.Running() {
		return
	}
	if ok && id.ParticipantID == a.session.Config.HostID {
		a.finalize(engine.EndHostLeft)
		return
	}
	if a.deps.Sockets.Len() == 0 {
		if err := a.deps.Alarm.Delete(a.ctx); err != nil {
			a.log.Warn("failed to clear alarm", zap.Error(err))
		}
		a.finalize(engine.EndAbandoned)
	}
}

// finalize ends the arena exactly once. Clearing the config is its first
// effect, so a second call is a no-op.
func (a *Actor) finalize(reason engine.EndReason) {
	s := a.session
	if s.Config == nil {
		a.log.Warn("finalize without config", zap.String("reason", string(reason)))
		return
	}
	a.session = engine.Session{}

	ctx, span := a.tracer.Start(a.ctx, "arena.finalize", trace.WithAttributes(
		attribute.String("arena.id", a.id),
		attribute.String("arena.end_reason", string(reason)),
	))
	defer span.End()

	parts := a.participants()
	results, err := engine.BuildResults(s, reason, resultParticipants(parts), a.deps.Clock())
	if err != nil {
		a.log.Error("failed to build results", zap.Error(err))
		return
	}
	a.log.Info("finalizing arena",
		zap.String("reason", string(reason)),
		zap.Int("participantCount", len(parts)),
		zap.Int("duration", results.Duration))

	a.broadcast(protocol.ArenaOver{Reason: reason, Results: results}, nil)
	closeReason := "Game ended: " + string(reason)
	for _, sock := range a.deps.Sockets.Sockets() {
		_ = sock.Close(protocol.CloseNormal, closeReason)
	}

	if a.deps.Reporter != nil {
		a.deps.Reporter.Report(ctx, results)
	}

	if err := a.deps.Alarm.Delete(ctx); err != nil {
		a.log.Warn("failed to clear alarm", zap.Error(err))
	}
	if err := a.deps.Store.DeleteAll(ctx); err != nil {
		a.log.Error("failed to clear stored session", zap.Error(err))
	}
}

// reject answers a protocol error and closes the offending socket.
func (a *Actor) reject(sock *conns.Socket, message string) {
	a.send(sock, protocol.Error{Message: message})
	_ = sock.Close(protocol.CloseProtocolError, message)
}

func (a *Actor) send(sock *conns.Socket, m protocol.ServerMsg) {
	b, err := protocol.Encode(m)
	if err != nil {
		a.log.Error("encode failed", zap.String("type", m.MsgType()), zap.Error(err))
		return
	}
	if err := sock.Send(b); err != nil {
		a.logSendFailure(sock.ID(), m.MsgType(), err)
	}
}

func (a *Actor) broadcast(m protocol.ServerMsg, exclude *conns.Socket) {
	b, err := protocol.Encode(m)
	if err != nil {
		a.log.Error("encode failed", zap.String("type", m.MsgType()), zap.Error(err))
		return
	}
	for id, err := range a.deps.Sockets.Broadcast(b, exclude) {
		a.logSendFailure(id, m.MsgType(), err)
	}
}

func (a *Actor) logSendFailure(socketID, msgType string, err error) {
	if errors.Is(err, conns.ErrClosed) {
		a.log.Debug("send to closed socket", zap.String("socket", socketID), zap.String("type", msgType))
		return
	}
	a.log.Warn("frame dropped", zap.String("socket", socketID), zap.String("type", msgType), zap.Error(err))
}

func (a *Actor) participants() []protocol.Participant {
	ids := a.deps.Sockets.Identities()
	out := make([]protocol.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, toParticipant(id))
	}
	return out
}

func toParticipant(id conns.Identity) protocol.Participant {
	return protocol.Participant{ID: id.ParticipantID, Username: id.Username, JoinedAt: id.JoinedAt}
}

func resultParticipants(ps []protocol.Participant) []engine.ResultParticipant {
	out := make([]engine.ResultParticipant, 0, len(ps))
	for _, p := range ps {
		out = append(out, engine.ResultParticipant{ID: p.ID, Username: p.Username})
	}
	return out
}
