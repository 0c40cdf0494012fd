// Package connstest provides an in-memory Peer for tests.
package connstest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/arena-sessions/internal/conns"
)

type CloseFrame struct {
	Code   int
	Reason string
}

// Peer records every frame it is sent and the close it receives.
type Peer struct {
	Frames chan []byte

	mu     sync.Mutex
	closed *CloseFrame
	closes int
}

func NewPeer() *Peer {
	return &Peer{Frames: make(chan []byte, 64)}
}

func (p *Peer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return conns.ErrClosed
	}
	select {
	case p.Frames <- append([]byte(nil), b...):
		return nil
	default:
		return conns.ErrBufferFull
	}
}

func (p *Peer) Close(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	if p.closed == nil {
		p.closed = &CloseFrame{Code: code, Reason: reason}
	}
	return nil
}

// Closed returns the first close frame, if any.
func (p *Peer) Closed() (CloseFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed == nil {
		return CloseFrame{}, false
	}
	return *p.closed, true
}

// Frame is a decoded server frame.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

func (f Frame) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Raw, v); err != nil {
		t.Fatalf("decode %s frame: %v", f.Type, err)
	}
}

// Recv waits for the next frame.
func (p *Peer) Recv(t *testing.T, within time.Duration) Frame {
	t.Helper()
	select {
	case b := <-p.Frames:
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("frame is not json: %s", b)
		}
		return Frame{Type: env.Type, Raw: b}
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return Frame{} // unreachable
	}
}

// RecvType skips frames until one of type typ arrives.
func (p *Peer) RecvType(t *testing.T, typ string, within time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %q frame", typ)
		}
		f := p.Recv(t, remaining)
		if f.Type == typ {
			return f
		}
	}
}

// RecvNone asserts nothing arrives within d.
func (p *Peer) RecvNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case b := <-p.Frames:
		t.Fatalf("expected no frame within %v, got %s", within, b)
	case <-time.After(within):
	}
}

// Drain discards buffered frames.
func (p *Peer) Drain() {
	for {
		select {
		case <-p.Frames:
		default:
			return
		}
	}
}

// CloseCount is how many times Close was called.
func (p *Peer) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}
