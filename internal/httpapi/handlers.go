package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"battleship-backend/internal/archive"
	"battleship-backend/internal/store"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListPlayers returns the players currently online, i.e. the lobby's
// challengeable list.
func ListPlayers(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := st.ListPresence(r.Context())
		if err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		type player struct {
			Name     string `json:"name"`
			LastSeen string `json:"last_seen"`
		}
		out := []player{}
		for _, p := range list {
			if p.Status != store.Online {
				continue
			}
			out = append(out, player{Name: string(p.Player), LastSeen: p.LastSeen.UTC().Format("2006-01-02T15:04:05Z")})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// GetArchivedMatch serves a finished match's record from the archive.
// arch may be nil when the server runs without a database.
func GetArchivedMatch(arch *archive.Postgres) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if arch == nil {
			http.Error(w, "archive not configured", http.StatusNotFound)
			return
		}
		id := chi.URLParam(r, "matchID")
		rec, err := arch.GetMatch(r.Context(), id)
		if errors.Is(err, archive.ErrNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "archive unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	}
}
