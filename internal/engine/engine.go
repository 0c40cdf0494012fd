package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotInitialized = errors.New("arena not initialized")
var ErrInvalidConfig = errors.New("invalid arena config")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrWrongArenaType = errors.New("command not valid for arena type")
var ErrInvalidPayload = errors.New("invalid payload")
var ErrMissingParticipant = errors.New("missing participant id")

type ArenaType string

const (
	TypeDraw   ArenaType = "draw"
	TypeCode   ArenaType = "code"
	TypeTyping ArenaType = "typing"
)

type Mode string

const (
	ModeSolo Mode = "solo"
	ModePvP  Mode = "pvp"
	ModeDuo  Mode = "duo"
)

type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
)

// Config is fixed by the first connection that supplies it and never
// changes for the lifetime of the arena.
type Config struct {
	ArenaID   string    `json:"arenaId"`
	Type      ArenaType `json:"type"`
	Mode      Mode      `json:"mode"`
	Prompt    string    `json:"prompt"`
	TimeLimit int       `json:"timeLimit"` // seconds
	HostID    string    `json:"hostId"`
	Language  Language  `json:"language,omitempty"`
}

func (c Config) Validate() error {
	if c.ArenaID == "" {
		return fmt.Errorf("%w: arenaId required", ErrInvalidConfig)
	}
	switch c.Type {
	case TypeDraw, TypeCode, TypeTyping:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, c.Type)
	}
	switch c.Mode {
	case ModeSolo, ModePvP, ModeDuo:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("%w: timeLimit must be positive", ErrInvalidConfig)
	}
	if c.HostID == "" {
		return fmt.Errorf("%w: hostId required", ErrInvalidConfig)
	}
	switch c.Language {
	case "", LangJavaScript, LangTypeScript, LangPython:
	default:
		return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, c.Language)
	}
	return nil
}

type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type TypingProgress struct {
	CharIndex int     `json:"charIndex"`
	WPM       float64 `json:"wpm"`
	Accuracy  float64 `json:"accuracy"`
	Finished  bool    `json:"finished"`
}

type CommandType string

const (
	CmdCursor       CommandType = "cursor"
	CmdCanvasUpdate CommandType = "canvas_update"
	CmdCodeUpdate   CommandType = "code_update"
	CmdRun          CommandType = "run"
	CmdProgress     CommandType = "progress"
)

/*
	CmdCursor       -> merge playerCursors[pid]             (draw, code)
	CmdCanvasUpdate -> replace playerElements[pid]          (draw)
	CmdCodeUpdate   -> replace playerCode[pid]              (code)
	CmdRun          -> replace testResults[pid] if supplied (code)
	CmdProgress     -> merge progress[pid]                  (typing)

	Every command yields exactly one Event attributed to the sender.
*/

type Command struct {
	Type     CommandType
	X        float64
	Y        float64
	Elements json.RawMessage
	Code     string
	Results  json.RawMessage
	Progress TypingProgress
}

type Event struct {
	Type          CommandType
	ParticipantID string
	X             float64
	Y             float64
	Elements      json.RawMessage
	Code          string
	Results       json.RawMessage
	Progress      TypingProgress
}

// Session is the durable part of an arena. A nil Config means the arena has
// not started yet, or has already been finalized.
type Session struct {
	Config    *Config
	StartedAt time.Time
	Data      Data
}

func (s Session) Running() bool {
	return s.Config != nil && s.Data != nil
}

// Apply routes cmd to the arena type's data variant. Only the sender's own
// entry is ever written.
func Apply(s Session, participantID string, cmd Command) (Event, Session, error) {
	if !s.Running() {
		return Event{}, s, ErrNotInitialized
	}
	if participantID == "" {
		return Event{}, s, ErrMissingParticipant
	}

	switch cmd.Type {
	case CmdCursor, CmdCanvasUpdate, CmdCodeUpdate, CmdRun, CmdProgress:
	default:
		return Event{}, s, fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}

	if err := s.Data.apply(participantID, cmd); err != nil {
		return Event{}, s, err
	}

	evt := Event{
		Type:          cmd.Type,
		ParticipantID: participantID,
		X:             cmd.X,
		Y:             cmd.Y,
		Elements:      cmd.Elements,
		Code:          cmd.Code,
		Results:       cmd.Results,
		Progress:      cmd.Progress,
	}
	return evt, s, nil
}
