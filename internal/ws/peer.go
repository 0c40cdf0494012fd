package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/conns"
)

const writeTimeout = 3 * time.Second

// peer is a conns.Peer over a websocket. A single writer goroutine drains the
// outbox, so frames keep their order and a close is sent after them.
type peer struct {
	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	logger *zap.Logger

	mu          sync.Mutex
	finished    bool
	closeCode   websocket.StatusCode
	closeReason string
}

func newPeer(conn *websocket.Conn, buffer int, logger *zap.Logger) *peer {
	if buffer <= 0 {
		buffer = 32
	}
	return &peer{
		conn:   conn,
		out:    make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *peer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return conns.ErrClosed
	}
	select {
	case p.out <- b:
		return nil
	default:
		return conns.ErrBufferFull
	}
}

// Close queues a close frame behind any pending frames.
func (p *peer) Close(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return nil
	}
	p.finished = true
	p.closeCode = websocket.StatusCode(code)
	p.closeReason = reason
	close(p.out)
	return nil
}

// finish stops the writer without sending a close frame.
func (p *peer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finished {
		p.finished = true
		close(p.out)
	}
}

func (p *peer) writeLoop(ctx context.Context) {
	defer close(p.done)
	for b := range p.out {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := p.conn.Write(wctx, websocket.MessageText, b)
		cancel()
		if err != nil {
			p.logger.Debug("write failed", zap.Error(err))
			// keep draining so Close can still run
			continue
		}
	}

	p.mu.Lock()
	code, reason := p.closeCode, p.closeReason
	p.mu.Unlock()
	if code != 0 {
		_ = p.conn.Close(code, reason)
	}
}
