package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/arena-sessions/internal/engine"
)

// ClientVisitor handles every client message. Adding a message type adds a
// method here, so every handler fails to compile until it deals with it.
type ClientVisitor interface {
	Init(Init)
	Leave(Leave)
	Cursor(Cursor)
	CanvasUpdate(CanvasUpdate)
	CodeUpdate(CodeUpdate)
	Run(Run)
	Progress(Progress)
}

type ClientMsg interface {
	Visit(v ClientVisitor)
}

type Init struct {
	UserID   string         `json:"userId"`
	Username string         `json:"username"`
	Config   *engine.Config `json:"config,omitempty"`
}

type Leave struct{}

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CanvasUpdate struct {
	Elements json.RawMessage `json:"elements"`
}

type CodeUpdate struct {
	Code string `json:"code"`
}

type Run struct {
	Results json.RawMessage `json:"results,omitempty"`
}

type Progress struct {
	Progress engine.TypingProgress `json:"progress"`
}

func (m Init) Visit(v ClientVisitor)         { v.Init(m) }
func (m Leave) Visit(v ClientVisitor)        { v.Leave(m) }
func (m Cursor) Visit(v ClientVisitor)       { v.Cursor(m) }
func (m CanvasUpdate) Visit(v ClientVisitor) { v.CanvasUpdate(m) }
func (m CodeUpdate) Visit(v ClientVisitor)   { v.CodeUpdate(m) }
func (m Run) Visit(v ClientVisitor)          { v.Run(m) }
func (m Progress) Visit(v ClientVisitor)     { v.Progress(m) }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one client frame.
func Decode(b []byte) (ClientMsg, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case MsgInit:
		return decodeAs[Init](b)
	case MsgLeave:
		return Leave{}, nil
	case MsgCursor:
		return decodeAs[Cursor](b)
	case MsgCanvasUpdate:
		return decodeAs[CanvasUpdate](b)
	case MsgCodeUpdate:
		return decodeAs[CodeUpdate](b)
	case MsgRun:
		return decodeAs[Run](b)
	case MsgProgress:
		return decodeAs[Progress](b)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T ClientMsg](b []byte) (ClientMsg, error) {
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}
