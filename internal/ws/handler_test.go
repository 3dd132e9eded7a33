package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"battleship-backend/internal/hub"
	"battleship-backend/internal/matchmaking"
	"battleship-backend/internal/store"
	"battleship-backend/pkg/types"
)

// droppedOnceStore hands out a dead challenge stream on the first
// subscription, the way Memory drops a slow consumer.
type droppedOnceStore struct {
	store.Store
	mu   sync.Mutex
	subs int
}

func (d *droppedOnceStore) SubscribeChallenges(ctx context.Context, pred func(store.Challenge) bool) (<-chan store.Challenge, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs++
	if d.subs == 1 {
		ch := make(chan store.Challenge)
		close(ch)
		return ch, nil
	}
	return d.Store.SubscribeChallenges(ctx, pred)
}

func (d *droppedOnceStore) subCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs
}

type testServer struct {
	st    *store.Memory
	coord *matchmaking.Coordinator
	url   string
}

func newTestServer(t *testing.T, ctx context.Context, wsStore store.Store, st *store.Memory) testServer {
	t.Helper()
	coord := matchmaking.New(ctx, st, clock.New(), matchmaking.Config{BoardSize: 10, Manifest: []int{2}}, zap.NewNop())
	h := hub.NewHub(ctx, st, nil, zap.NewNop())

	srv := httptest.NewServer(Handler(Deps{
		Coord:     coord,
		Hub:       h,
		Store:     wsStore,
		Log:       zap.NewNop(),
		BoardSize: 10,
		Manifest:  []int{2},
	}))
	t.Cleanup(srv.Close)
	return testServer{st: st, coord: coord, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, ctx context.Context, url, player string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url+"/?player="+player, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) types.ServerMessage {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "connection died before a %q message arrived", msgType)
		var msg types.ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestHandler_ChallengeStreamRecovers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := store.NewMemory()
	fl := &droppedOnceStore{Store: st}
	ts := newTestServer(t, ctx, fl, st)
	conn := dial(t, ctx, ts.url, "alice")

	// the dead first stream must be replaced before deliveries matter
	require.Eventually(t, func() bool { return fl.subCount() >= 2 }, 2*time.Second, 10*time.Millisecond,
		"handler never resubscribed after the stream dropped")

	require.NoError(t, st.PutChallenge(ctx, store.Challenge{
		ID: "c1", From: "bob", To: "alice", Status: store.ChallengePending, CreatedAt: time.Now(),
	}))

	msg := readUntil(t, ctx, conn, "challenge")
	require.Equal(t, "c1", msg.Challenge.ID)
}

func TestHandler_PlayerListComesFromCoordinator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := store.NewMemory()
	ts := newTestServer(t, ctx, st, st)
	conn := dial(t, ctx, ts.url, "alice")

	// a player the coordinator knows about but who holds no websocket
	ts.coord.Inbox() <- matchmaking.SetPresence{Player: "bob", Online: true}

	for {
		msg := readUntil(t, ctx, conn, "playerList")
		names := make([]string, 0, len(msg.Players))
		for _, p := range msg.Players {
			require.NotEqual(t, "alice", p.Name, "own name must not appear in the lobby list")
			names = append(names, p.Name)
		}
		for _, n := range names {
			if n == "bob" {
				return
			}
		}
	}
}
