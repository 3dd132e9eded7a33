package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"battleship-backend/internal/store"
)

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListPlayers_OnlineOnly(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutPresence(ctx, store.Presence{Player: "alice", Status: store.Online, LastSeen: now}))
	require.NoError(t, st.PutPresence(ctx, store.Presence{Player: "bob", Status: store.Offline, LastSeen: now}))

	rec := httptest.NewRecorder()
	ListPlayers(st)(rec, httptest.NewRequest(http.MethodGet, "/players", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Name     string `json:"name"`
		LastSeen string `json:"last_seen"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "alice", out[0].Name)
	require.Equal(t, "2026-03-01T12:00:00Z", out[0].LastSeen)
}

func TestGetArchivedMatch_NoArchiveConfigured(t *testing.T) {
	handler := SetupRoutes(store.NewMemory(), nil, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/ABC123", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
