package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Data is the arena-type specific payload of a running session. The set of
// variants is closed: DrawData, CodeData and TypingData.
type Data interface {
	Type() ArenaType
	apply(participantID string, cmd Command) error
}

type DrawData struct {
	PlayerElements map[string]json.RawMessage `json:"playerElements"`
	PlayerCursors  map[string]CursorPos       `json:"playerCursors"`
}

func (*DrawData) Type() ArenaType { return TypeDraw }

func (d *DrawData) apply(participantID string, cmd Command) error {
	switch cmd.Type {
	case CmdCursor:
		d.PlayerCursors[participantID] = CursorPos{X: cmd.X, Y: cmd.Y}
	case CmdCanvasUpdate:
		elements, err := rawList(cmd.Elements)
		if err != nil {
			return err
		}
		d.PlayerElements[participantID] = elements
	default:
		return wrongType(cmd.Type, TypeDraw)
	}
	return nil
}

type CodeData struct {
	Language      Language                   `json:"language"`
	PlayerCode    map[string]string          `json:"playerCode"`
	TestResults   map[string]json.RawMessage `json:"testResults"`
	PlayerCursors map[string]CursorPos       `json:"playerCursors"`
}

func (*CodeData) Type() ArenaType { return TypeCode }

func (d *CodeData) apply(participantID string, cmd Command) error {
	switch cmd.Type {
	case CmdCursor:
		d.PlayerCursors[participantID] = CursorPos{X: cmd.X, Y: cmd.Y}
	case CmdCodeUpdate:
		d.PlayerCode[participantID] = cmd.Code
	case CmdRun:
		// Grading happens elsewhere; a run without results only notifies peers.
		if len(bytes.TrimSpace(cmd.Results)) == 0 {
			return nil
		}
		results, err := rawList(cmd.Results)
		if err != nil {
			return err
		}
		d.TestResults[participantID] = results
	default:
		return wrongType(cmd.Type, TypeCode)
	}
	return nil
}

type TypingData struct {
	Progress map[string]TypingProgress `json:"playerProgress"`
}

func (*TypingData) Type() ArenaType { return TypeTyping }

func (d *TypingData) apply(participantID string, cmd Command) error {
	switch cmd.Type {
	case CmdProgress:
		p := cmd.Progress
		if p.CharIndex < 0 || p.WPM < 0 || p.Accuracy < 0 || p.Accuracy > 100 {
			return fmt.Errorf("%w: progress out of range", ErrInvalidPayload)
		}
		d.Progress[participantID] = p
	default:
		return wrongType(cmd.Type, TypeTyping)
	}
	return nil
}

func wrongType(cmd CommandType, t ArenaType) error {
	return fmt.Errorf("%w: %s in %s arena", ErrWrongArenaType, cmd, t)
}

// rawList accepts any JSON array (contents stay opaque) and treats a missing
// value as an empty list.
func rawList(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	if trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidPayload)
	}
	return append(json.RawMessage(nil), trimmed...), nil
}
