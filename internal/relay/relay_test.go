package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"battleship-backend/internal/engine"
	"battleship-backend/internal/game"
	"battleship-backend/internal/match"
	"battleship-backend/internal/store"
)

func startSession(t *testing.T, ctx context.Context, st store.Store, matchID string) *match.Session {
	t.Helper()
	s, err := match.New(ctx, matchID, st, zap.NewNop(), nil)
	require.NoError(t, err)
	go func() { _ = PumpMatch(ctx, st, matchID, s, zap.NewNop()) }()
	return s
}

func submit(t *testing.T, s *match.Session, cmd engine.Command) error {
	t.Helper()
	reply := make(chan error, 1)
	s.Inbox() <- match.Submit{Cmd: cmd, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for submit reply")
		return nil
	}
}

func view(t *testing.T, s *match.Session) match.View {
	t.Helper()
	reply := make(chan match.View, 1)
	s.Inbox() <- match.GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return match.View{}
	}
}

func waitVersion(t *testing.T, s *match.Session, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return view(t, s).Version >= want
	}, 2*time.Second, 10*time.Millisecond, "session never reached version %d", want)
}

// Two session actors share one store; each only ever writes its own
// player's commands, and the pump carries the other side's events over.
func TestPumpMatch_TwoSessionsConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	created := engine.NewMatchEvent("M1", "alice", "bob", 10, []int{2})
	require.NoError(t, st.AppendEvents(ctx, "M1", 0, []engine.Event{created}))

	sessA := startSession(t, ctx, st, "M1")
	sessB := startSession(t, ctx, st, "M1")

	aliceShips := []game.Ship{{ID: "a0", Length: 2, Cells: []game.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}}}}
	bobShips := []game.Ship{{ID: "b0", Length: 2, Cells: []game.Coord{{Row: 5, Col: 5}, {Row: 6, Col: 5}}}}

	require.NoError(t, submit(t, sessA, engine.Command{Type: engine.CmdPlaceFleet, Player: "alice", Ships: aliceShips}))
	waitVersion(t, sessB, 2)
	require.True(t, view(t, sessB).State.Boards["alice"].HasFleet(), "placement did not travel")

	require.NoError(t, submit(t, sessB, engine.Command{Type: engine.CmdPlaceFleet, Player: "bob", Ships: bobShips}))
	waitVersion(t, sessA, 3)

	require.NoError(t, submit(t, sessA, engine.Command{Type: engine.CmdReady, Player: "alice"}))
	waitVersion(t, sessB, 4)
	require.NoError(t, submit(t, sessB, engine.Command{Type: engine.CmdReady, Player: "bob"}))
	waitVersion(t, sessA, 5)
	require.Equal(t, engine.PhaseFiring, view(t, sessA).State.Phase)

	// bob's session knows it is not his turn without touching the store
	require.ErrorIs(t, submit(t, sessB, engine.Command{Type: engine.CmdFire, Player: "bob", Target: game.Coord{Row: 0, Col: 0}}), engine.ErrNotYourTurn)

	require.NoError(t, submit(t, sessA, engine.Command{Type: engine.CmdFire, Player: "alice", Target: game.Coord{Row: 5, Col: 5}}))
	waitVersion(t, sessB, 6)
	require.NoError(t, submit(t, sessB, engine.Command{Type: engine.CmdFire, Player: "bob", Target: game.Coord{Row: 9, Col: 9}}))
	waitVersion(t, sessA, 7)

	// the sinking shot also appends the terminal event
	require.NoError(t, submit(t, sessA, engine.Command{Type: engine.CmdFire, Player: "alice", Target: game.Coord{Row: 6, Col: 5}}))
	waitVersion(t, sessB, 9)

	for _, v := range []match.View{view(t, sessA), view(t, sessB)} {
		require.Equal(t, engine.PhaseFinished, v.State.Phase)
		require.Equal(t, engine.PlayerID("alice"), v.State.Winner)
		require.Equal(t, 9, v.Version)
	}
}

// droppedOnceStore hands out a dead match stream on the first
// subscription, the way Memory drops a slow consumer.
type droppedOnceStore struct {
	store.Store
	mu   sync.Mutex
	subs int
}

func (d *droppedOnceStore) SubscribeMatch(ctx context.Context, matchID string) (<-chan store.EventBatch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs++
	if d.subs == 1 {
		ch := make(chan store.EventBatch)
		close(ch)
		return ch, nil
	}
	return d.Store.SubscribeMatch(ctx, matchID)
}

func (d *droppedOnceStore) subCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs
}

func TestPumpMatch_ReopensDroppedStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := store.NewMemory()
	created := engine.NewMatchEvent("M3", "alice", "bob", 10, []int{2})
	require.NoError(t, st.AppendEvents(ctx, "M3", 0, []engine.Event{created}))

	s, err := match.New(ctx, "M3", st, zap.NewNop(), nil)
	require.NoError(t, err)

	dr := &droppedOnceStore{Store: st}
	go func() { _ = PumpMatch(ctx, dr, "M3", s, zap.NewNop()) }()

	// an append the dead first stream never delivered
	require.NoError(t, st.AppendEvents(ctx, "M3", 1, []engine.Event{
		{Type: engine.EvtFleetPlaced, Player: "alice", Ships: []game.Ship{
			{ID: "a0", Length: 2, Cells: []game.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}}},
		}},
	}))

	waitVersion(t, s, 2)
	require.True(t, view(t, s).State.Boards["alice"].HasFleet(), "event lost across the dropped stream")
	require.GreaterOrEqual(t, dr.subCount(), 2, "pump never resubscribed")
}

func TestPumpMatch_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	st := store.NewMemory()
	created := engine.NewMatchEvent("M2", "alice", "bob", 10, []int{2})
	require.NoError(t, st.AppendEvents(ctx, "M2", 0, []engine.Event{created}))

	s, err := match.New(ctx, "M2", st, zap.NewNop(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- PumpMatch(ctx, st, "M2", s, zap.NewNop()) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("pump did not stop on cancel")
	}
}
