// Package ws is the ingress gateway: it validates an arena id with the
// registry, upgrades the request and pumps frames between the socket and the
// arena's actor.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-sessions/internal/arena"
	"github.com/DoyleJ11/arena-sessions/internal/conns"
	"github.com/DoyleJ11/arena-sessions/internal/protocol"
	"github.com/DoyleJ11/arena-sessions/internal/registry"
)

// Router hands events to the actor for an arena.
type Router interface {
	Deliver(arenaID string, m arena.Msg) error
}

// Validator is the registry lookup done before upgrading.
type Validator interface {
	Status(ctx context.Context, arenaID string) (registry.Status, error)
}

// DefaultMaxMessageBytes bounds one inbound frame when Options leaves it unset.
// Canvas and code updates carry the whole document, so this is well above the
// library's 32 KiB default.
const DefaultMaxMessageBytes = 1 << 20

type Options struct {
	OriginPatterns  []string
	SocketBuffer    int
	MaxMessageBytes int64
	Logger          *zap.Logger
}

func Handler(h Router, v Validator, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ws")
	readLimit := opts.MaxMessageBytes
	if readLimit <= 0 {
		readLimit = DefaultMaxMessageBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		arenaID := r.URL.Query().Get("arenaId")
		log := logger.With(zap.String("arenaId", arenaID))
		log.Info("fetch", zap.String("url", r.URL.String()))

		if arenaID == "" {
			writeJSONError(w, http.StatusBadRequest, "arenaId required")
			return
		}
		if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			http.Error(w, "Expected WebSocket upgrade", http.StatusUpgradeRequired)
			return
		}

		if v != nil {
			st, err := v.Status(r.Context(), arenaID)
			switch {
			case err != nil:
				// registry unreachable: let the actor decide
				log.Warn("failed to validate arena", zap.Error(err))
			case !st.Exists:
				writeJSONError(w, http.StatusNotFound, "Arena not found")
				return
			case st.Status == registry.StatusEnded:
				writeJSONError(w, http.StatusGone, "Arena has ended")
				return
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		p := newPeer(conn, opts.SocketBuffer, log)
		sock := conns.NewSocket(uuid.NewString(), p)
		log = log.With(zap.String("socket", sock.ID()))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go p.writeLoop(writeCtx)

		if err := h.Deliver(arenaID, arena.Opened{Socket: sock}); err != nil {
			log.Warn("arena unavailable", zap.Error(err))
			_ = p.Close(protocol.CloseGoingAway, "server shutting down")
			<-p.done
			return
		}
		log.Info("websocket upgrade accepted")

		// Reader loop
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				code, reason := closeInfo(err)
				_ = h.Deliver(arenaID, arena.Closed{Socket: sock, Code: code, Reason: reason})
				break
			}
			if typ != websocket.MessageText {
				_ = p.Send(protocol.ErrorFrame("Binary messages not supported"))
				continue
			}
			if err := h.Deliver(arenaID, arena.Message{Socket: sock, Data: data}); err != nil {
				break
			}
		}

		p.finish()
		<-p.done
	}
}

func closeInfo(err error) (int, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Reason
	}
	return int(websocket.StatusAbnormalClosure), err.Error()
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: message})
}
