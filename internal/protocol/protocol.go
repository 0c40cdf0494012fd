// Package protocol is the JSON wire format spoken over an arena socket. Every
// frame is an object with a "type" discriminator and flat fields.
package protocol

import (
	"errors"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

var ErrMalformed = errors.New("malformed message")
var ErrUnknownType = errors.New("unknown message type")

// Client -> Server
const (
	MsgInit         = "init"
	MsgLeave        = "leave"
	MsgCursor       = "cursor"
	MsgCanvasUpdate = "canvas_update"
	MsgCodeUpdate   = "code_update"
	MsgRun          = "run"
	MsgProgress     = "progress"
)

// Server -> Client. Attributed action events reuse the client names above.
const (
	MsgState             = "state"
	MsgTick              = "tick"
	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
	MsgArenaOver         = "arena_over"
	MsgError             = "error"
)

// WebSocket close codes used by the coordinator.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
)

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	JoinedAt int64  `json:"joinedAt"` // unix millis
}

// ToCommand maps an action message onto its engine command. Init and Leave
// are lifecycle messages, not actions.
func ToCommand(m ClientMsg) (engine.Command, bool) {
	switch msg := m.(type) {
	case Cursor:
		return engine.Command{Type: engine.CmdCursor, X: msg.X, Y: msg.Y}, true
	case CanvasUpdate:
		return engine.Command{Type: engine.CmdCanvasUpdate, Elements: msg.Elements}, true
	case CodeUpdate:
		return engine.Command{Type: engine.CmdCodeUpdate, Code: msg.Code}, true
	case Run:
		return engine.Command{Type: engine.CmdRun, Results: msg.Results}, true
	case Progress:
		return engine.Command{Type: engine.CmdProgress, Progress: msg.Progress}, true
	default:
		return engine.Command{}, false
	}
}

// FromEvent is the attributed broadcast for an applied command.
func FromEvent(e engine.Event) (ServerMsg, bool) {
	switch e.Type {
	case engine.CmdCursor:
		return CursorEvent{ParticipantID: e.ParticipantID, X: e.X, Y: e.Y}, true
	case engine.CmdCanvasUpdate:
		return CanvasUpdateEvent{ParticipantID: e.ParticipantID, Elements: e.Elements}, true
	case engine.CmdCodeUpdate:
		return CodeUpdateEvent{ParticipantID: e.ParticipantID, Code: e.Code}, true
	case engine.CmdRun:
		return RunEvent{ParticipantID: e.ParticipantID, Results: e.Results}, true
	case engine.CmdProgress:
		return ProgressEvent{ParticipantID: e.ParticipantID, Progress: e.Progress}, true
	default:
		return nil, false
	}
}
