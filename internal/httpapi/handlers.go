package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/arena-sessions/internal/conns"
	"github.com/DoyleJ11/arena-sessions/internal/engine"
	"github.com/DoyleJ11/arena-sessions/internal/hub"
	"github.com/DoyleJ11/arena-sessions/internal/protocol"
)

type arenaView struct {
	ArenaID      string           `json:"arenaId"`
	Running      bool             `json:"running"`
	Session      engine.Session   `json:"session"`
	Sockets      int              `json:"sockets"`
	Participants []conns.Identity `json:"participants"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Diagnostics(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.Stats())
	}
}

// ArenaDiagnostics reports the state of a live or stored arena. Unknown ids
// are 404 and never start an actor.
func ArenaDiagnostics(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "arenaID")
		v, ok, err := h.Peek(r.Context(), id)
		if err != nil {
			http.Error(w, "arena unavailable", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			http.Error(w, "arena not found", http.StatusNotFound)
			return
		}
		participants := v.Participants
		if participants == nil {
			participants = []conns.Identity{}
		}
		writeJSON(w, http.StatusOK, arenaView{
			ArenaID:      v.ArenaID,
			Running:      v.Session.Running(),
			Session:      v.Session,
			Sockets:      v.Sockets,
			Participants: participants,
		})
	}
}

func ProtocolSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.ClientSchema())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
