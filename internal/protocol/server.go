package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

type ServerMsg interface {
	MsgType() string
}

type State struct {
	Participants  []Participant `json:"participants"`
	Data          engine.Data   `json:"data"`
	TimeRemaining int           `json:"timeRemaining"`
}

type Tick struct {
	TimeRemaining int `json:"timeRemaining"`
}

type ParticipantJoined struct {
	Participant Participant `json:"participant"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participantId"`
}

type ArenaOver struct {
	Reason  engine.EndReason `json:"reason"`
	Results engine.Results   `json:"results"`
}

type Error struct {
	Message string `json:"message"`
}

type CursorEvent struct {
	ParticipantID string  `json:"participantId"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
}

type CanvasUpdateEvent struct {
	ParticipantID string          `json:"participantId"`
	Elements      json.RawMessage `json:"elements"`
}

type CodeUpdateEvent struct {
	ParticipantID string `json:"participantId"`
	Code          string `json:"code"`
}

type RunEvent struct {
	ParticipantID string          `json:"participantId"`
	Results       json.RawMessage `json:"results,omitempty"`
}

type ProgressEvent struct {
	ParticipantID string                `json:"participantId"`
	Progress      engine.TypingProgress `json:"progress"`
}

func (State) MsgType() string             { return MsgState }
func (Tick) MsgType() string              { return MsgTick }
func (ParticipantJoined) MsgType() string { return MsgParticipantJoined }
func (ParticipantLeft) MsgType() string   { return MsgParticipantLeft }
func (ArenaOver) MsgType() string         { return MsgArenaOver }
func (Error) MsgType() string             { return MsgError }
func (CursorEvent) MsgType() string       { return MsgCursor }
func (CanvasUpdateEvent) MsgType() string { return MsgCanvasUpdate }
func (CodeUpdateEvent) MsgType() string   { return MsgCodeUpdate }
func (RunEvent) MsgType() string          { return MsgRun }
func (ProgressEvent) MsgType() string     { return MsgProgress }

// Encode marshals m and prepends its "type" discriminator.
func Encode(m ServerMsg) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MsgType(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: not an object", m.MsgType())
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(m.MsgType()) + 12)
	buf.WriteString(`{"type":`)
	typ, _ := json.Marshal(m.MsgType())
	buf.Write(typ)
	if rest := body[1:]; len(rest) > 1 {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// ErrorFrame is a pre-encoded error message, falling back to a fixed frame if
// encoding fails.
func ErrorFrame(message string) []byte {
	b, err := Encode(Error{Message: message})
	if err != nil {
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return b
}
