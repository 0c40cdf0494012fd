package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// NewData returns the zero value for an arena type.
func NewData(t ArenaType, lang Language) (Data, error) {
	switch t {
	case TypeDraw:
		return &DrawData{
			PlayerElements: map[string]json.RawMessage{},
			PlayerCursors:  map[string]CursorPos{},
		}, nil
	case TypeCode:
		if lang == "" {
			lang = LangJavaScript
		}
		return &CodeData{
			Language:      lang,
			PlayerCode:    map[string]string{},
			TestResults:   map[string]json.RawMessage{},
			PlayerCursors: map[string]CursorPos{},
		}, nil
	case TypeTyping:
		return &TypingData{Progress: map[string]TypingProgress{}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, t)
	}
}

// NewSession starts a session for cfg at now.
func NewSession(cfg Config, now time.Time) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return Session{}, err
	}
	data, err := NewData(cfg.Type, cfg.Language)
	if err != nil {
		return Session{}, err
	}
	return Session{Config: &cfg, StartedAt: now, Data: data}, nil
}

// Elapsed is the number of whole seconds since the session started.
func Elapsed(s Session, now time.Time) int {
	if s.StartedAt.IsZero() || now.Before(s.StartedAt) {
		return 0
	}
	return int(now.Sub(s.StartedAt) / time.Second)
}

// TimeRemaining is never negative and never increases as now advances.
func TimeRemaining(s Session, now time.Time) int {
	if s.Config == nil || s.StartedAt.IsZero() {
		return 0
	}
	return max(0, s.Config.TimeLimit-Elapsed(s, now))
}

// Deadline is the instant the countdown reaches zero.
func Deadline(s Session) time.Time {
	if s.Config == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(time.Duration(s.Config.TimeLimit) * time.Second)
}

// NextTick is the next whole-second boundary after now, measured from the
// session start, capped at the deadline.
func NextTick(s Session, now time.Time) time.Time {
	next := s.StartedAt.Add(time.Duration(Elapsed(s, now)+1) * time.Second)
	if deadline := Deadline(s); next.After(deadline) {
		return deadline
	}
	return next
}

type storedSession struct {
	Config    *Config         `json:"config"`
	StartedAt *int64          `json:"startedAt"`
	Data      json.RawMessage `json:"data"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := storedSession{Config: s.Config}
	if !s.StartedAt.IsZero() {
		ms := s.StartedAt.UnixMilli()
		out.StartedAt = &ms
	}
	if s.Data != nil {
		raw, err := json.Marshal(s.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		out.Data = raw
	}
	return json.Marshal(out)
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var in storedSession
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*s = Session{Config: in.Config}
	if in.StartedAt != nil {
		s.StartedAt = time.UnixMilli(*in.StartedAt)
	}
	if in.Config == nil {
		return nil
	}

	data, err := NewData(in.Config.Type, in.Config.Language)
	if err != nil {
		return err
	}
	if len(in.Data) > 0 && string(in.Data) != "null" {
		if err := json.Unmarshal(in.Data, data); err != nil {
			return fmt.Errorf("unmarshal %s data: %w", in.Config.Type, err)
		}
	}
	s.Data = data
	return nil
}
