package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"battleship-backend/internal/archive"
	"battleship-backend/internal/store"
)

func SetupRoutes(st store.Store, arch *archive.Postgres, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/players", ListPlayers(st))
	r.Get("/matches/{matchID}", GetArchivedMatch(arch))
	r.Get("/ws", wsHandler)
	return r
}
