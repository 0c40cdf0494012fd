package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func newRunning(t *testing.T, typ ArenaType) Session {
	t.Helper()
	s, err := NewSession(Config{
		ArenaID:   "arena-1",
		Type:      typ,
		Mode:      ModePvP,
		Prompt:    "draw a cat",
		TimeLimit: 60,
		HostID:    "p1",
	}, t0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestConfigValidate(t *testing.T) {
	valid := Config{ArenaID: "a", Type: TypeDraw, Mode: ModeSolo, TimeLimit: 5, HostID: "h"}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing arena id", mutate: func(c *Config) { c.ArenaID = "" }, wantErr: true},
		{name: "unknown type", mutate: func(c *Config) { c.Type = "chess" }, wantErr: true},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "ffa" }, wantErr: true},
		{name: "zero time limit", mutate: func(c *Config) { c.TimeLimit = 0 }, wantErr: true},
		{name: "missing host", mutate: func(c *Config) { c.HostID = "" }, wantErr: true},
		{name: "unknown language", mutate: func(c *Config) { c.Language = "cobol" }, wantErr: true},
		{name: "known language", mutate: func(c *Config) { c.Language = LangPython }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("want ErrInvalidConfig, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestApply_RoutesByArenaType(t *testing.T) {
	cases := []struct {
		name    string
		typ     ArenaType
		cmd     Command
		wantErr error
	}{
		{name: "draw cursor", typ: TypeDraw, cmd: Command{Type: CmdCursor, X: 1, Y: 2}},
		{name: "draw canvas", typ: TypeDraw, cmd: Command{Type: CmdCanvasUpdate, Elements: json.RawMessage(`[{"id":"a"}]`)}},
		{name: "draw rejects code", typ: TypeDraw, cmd: Command{Type: CmdCodeUpdate, Code: "x"}, wantErr: ErrWrongArenaType},
		{name: "code update", typ: TypeCode, cmd: Command{Type: CmdCodeUpdate, Code: "print(1)"}},
		{name: "code cursor", typ: TypeCode, cmd: Command{Type: CmdCursor, X: 3, Y: 4}},
		{name: "code run", typ: TypeCode, cmd: Command{Type: CmdRun}},
		{name: "code rejects progress", typ: TypeCode, cmd: Command{Type: CmdProgress}, wantErr: ErrWrongArenaType},
		{name: "typing progress", typ: TypeTyping, cmd: Command{Type: CmdProgress, Progress: TypingProgress{CharIndex: 4, WPM: 50, Accuracy: 98}}},
		{name: "typing rejects cursor", typ: TypeTyping, cmd: Command{Type: CmdCursor}, wantErr: ErrWrongArenaType},
		{name: "typing rejects bad accuracy", typ: TypeTyping, cmd: Command{Type: CmdProgress, Progress: TypingProgress{Accuracy: 140}}, wantErr: ErrInvalidPayload},
		{name: "unknown command", typ: TypeDraw, cmd: Command{Type: "explode"}, wantErr: ErrUnsupportedCommand},
		{name: "canvas must be a list", typ: TypeDraw, cmd: Command{Type: CmdCanvasUpdate, Elements: json.RawMessage(`{"id":"a"}`)}, wantErr: ErrInvalidPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newRunning(t, tc.typ)
			evt, _, err := Apply(s, "p2", tc.cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if evt.ParticipantID != "p2" || evt.Type != tc.cmd.Type {
				t.Fatalf("event not attributed to sender: %+v", evt)
			}
		})
	}
}

func TestApply_BeforeInitIsRejected(t *testing.T) {
	_, _, err := Apply(Session{}, "p1", Command{Type: CmdCursor})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
}

func TestApply_CanvasReplacesWholeDocument(t *testing.T) {
	s := newRunning(t, TypeDraw)

	_, s, err := Apply(s, "p1", Command{Type: CmdCanvasUpdate, Elements: json.RawMessage(`[1,2,3]`)})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	_, s, err = Apply(s, "p1", Command{Type: CmdCanvasUpdate, Elements: json.RawMessage(`[4]`)})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	draw := s.Data.(*DrawData)
	if got := string(draw.PlayerElements["p1"]); got != "[4]" {
		t.Fatalf("want [4], got %s", got)
	}
}

func TestApply_OnlyTouchesSenderEntry(t *testing.T) {
	s := newRunning(t, TypeTyping)

	_, s, _ = Apply(s, "p1", Command{Type: CmdProgress, Progress: TypingProgress{CharIndex: 10}})
	_, s, _ = Apply(s, "p2", Command{Type: CmdProgress, Progress: TypingProgress{CharIndex: 3}})

	typing := s.Data.(*TypingData)
	if typing.Progress["p1"].CharIndex != 10 || typing.Progress["p2"].CharIndex != 3 {
		t.Fatalf("progress entries crossed: %+v", typing.Progress)
	}
}

func TestTimeRemaining_MonotonicAndClamped(t *testing.T) {
	s := newRunning(t, TypeTyping)
	s.Config.TimeLimit = 5

	prev := TimeRemaining(s, t0)
	if prev != 5 {
		t.Fatalf("at start: want 5, got %d", prev)
	}
	for step := 1; step <= 8; step++ {
		now := t0.Add(time.Duration(step) * 700 * time.Millisecond)
		got := TimeRemaining(s, now)
		if got > prev {
			t.Fatalf("remaining increased: %d -> %d", prev, got)
		}
		prev = got
	}
	if got := TimeRemaining(s, t0.Add(time.Minute)); got != 0 {
		t.Fatalf("after deadline: want 0, got %d", got)
	}
}

func TestNextTick_AlignedToStartAndCapped(t *testing.T) {
	s := newRunning(t, TypeDraw)
	s.Config.TimeLimit = 2

	if got := NextTick(s, t0.Add(300*time.Millisecond)); !got.Equal(t0.Add(time.Second)) {
		t.Fatalf("want t0+1s, got %v", got)
	}
	if got := NextTick(s, t0.Add(1900*time.Millisecond)); !got.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("want t0+2s, got %v", got)
	}
	if got := NextTick(s, t0.Add(5*time.Second)); !got.Equal(Deadline(s)) {
		t.Fatalf("want deadline, got %v", got)
	}
}

func TestSession_JSONRoundTripKeepsVariant(t *testing.T) {
	s := newRunning(t, TypeCode)
	_, s, _ = Apply(s, "p1", Command{Type: CmdCodeUpdate, Code: "fn main() {}"})
	_, s, _ = Apply(s, "p1", Command{Type: CmdRun, Results: json.RawMessage(`[{"passed":true}]`)})

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Session
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	code, ok := back.Data.(*CodeData)
	if !ok {
		t.Fatalf("want *CodeData, got %T", back.Data)
	}
	if code.PlayerCode["p1"] != "fn main() {}" || code.Language != LangJavaScript {
		t.Fatalf("code data lost: %+v", code)
	}
	if !back.StartedAt.Equal(t0) {
		t.Fatalf("startedAt: want %v, got %v", t0, back.StartedAt)
	}
}

func TestSession_UnmarshalEmpty(t *testing.T) {
	var s Session
	if err := json.Unmarshal([]byte(`{"config":null,"startedAt":null,"data":null}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Running() {
		t.Fatalf("expected uninitialized session")
	}
}

func TestBuildResults(t *testing.T) {
	s := newRunning(t, TypeTyping)
	res, err := BuildResults(s, EndCompleted, nil, t0.Add(5500*time.Millisecond))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if res.Duration != 5 || res.ArenaID != "arena-1" || res.Participants == nil {
		t.Fatalf("unexpected results: %+v", res)
	}

	if _, err := BuildResults(Session{}, EndCompleted, nil, t0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("want ErrNotInitialized, got %v", err)
	}
}
