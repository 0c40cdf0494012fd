package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/arena-sessions/internal/hub"
	"github.com/DoyleJ11/arena-sessions/internal/ws"
)

func SetupRoutes(h *hub.Hub, v ws.Validator, opts ws.Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, v, opts))
	r.Get("/protocol/schema", ProtocolSchema)

	r.Route("/diagnostics", func(r chi.Router) {
		r.Get("/", Diagnostics(h))
		r.Get("/arenas/{arenaID}", ArenaDiagnostics(h))
	})
	return r
}
