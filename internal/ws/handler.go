package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"battleship-backend/internal/engine"
	"battleship-backend/internal/game"
	"battleship-backend/internal/hub"
	"battleship-backend/internal/match"
	"battleship-backend/internal/matchmaking"
	"battleship-backend/internal/store"
	"battleship-backend/pkg/types"
)

const writeTimeout = 3 * time.Second

type Deps struct {
	Coord     *matchmaking.Coordinator
	Hub       *hub.Hub
	Store     store.Store
	Log       *zap.Logger
	BoardSize int
	Manifest  []int
}

// Handler runs one websocket per player: lobby intents go to the
// coordinator, match intents to the player's current session, and
// challenge/presence/snapshot streams flow back out.
func Handler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player := r.URL.Query().Get("player")
		if len(player) < 3 {
			http.Error(w, "player name must be at least 3 characters", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			player:   engine.PlayerID(player),
			clientID: randID(6),
			conn:     conn,
			d:        d,
			out:      make(chan types.ServerMessage, 32),
			rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		}
		c.run(r.Context())
	}
}

type client struct {
	player   engine.PlayerID
	clientID string
	conn     *websocket.Conn
	d        Deps
	out      chan types.ServerMessage
	rng      *rand.Rand

	session *match.Session
	snapCh  chan match.Snapshot
}

func (c *client) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.d.Coord.Inbox() <- matchmaking.SetPresence{Player: c.player, Online: true}
	defer func() {
		c.d.Coord.Inbox() <- matchmaking.SetPresence{Player: c.player, Online: false}
		if c.session != nil {
			c.session.Inbox() <- match.Leave{ClientID: c.clientID}
		}
	}()

	// Writer goroutine: the only place that touches conn for writes.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.out:
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				_ = c.conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
			}
		}
	}()

	me := c.player
	mine := func(ch store.Challenge) bool {
		return ch.From == me || ch.To == me
	}
	challenges, err := c.d.Store.SubscribeChallenges(ctx, mine)
	if err != nil {
		c.d.Log.Warn("challenge subscription failed", zap.String("player", string(me)), zap.Error(err))
		return
	}
	presence, err := c.d.Store.SubscribePresence(ctx, nil)
	if err != nil {
		c.d.Log.Warn("presence subscription failed", zap.String("player", string(me)), zap.Error(err))
		return
	}

	// Reader goroutine: conn.Read blocks, so intents funnel through a
	// channel and the loop below stays the single owner of c.session.
	intents := make(chan types.ClientMessage)
	go func() {
		defer close(intents)
		for {
			_, data, err := c.conn.Read(ctx)
			if err != nil {
				return
			}
			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.send(errorMsg("badRequest", "bad json"))
				continue
			}
			select {
			case intents <- cm:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.sendPlayerList(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case cm, ok := <-intents:
			if !ok {
				return
			}
			c.handleIntent(cm)

		case ch, ok := <-challenges:
			if !ok {
				// store dropped us as a slow consumer; a fresh
				// subscription restores the stream
				if challenges, err = c.d.Store.SubscribeChallenges(ctx, mine); err != nil {
					c.d.Log.Warn("challenge resubscription failed", zap.String("player", string(me)), zap.Error(err))
					return
				}
				continue
			}
			c.send(types.ServerMessage{Type: "challenge", Challenge: challengeInfo(ch)})
			if ch.Status == store.ChallengeAccepted && ch.MatchID != "" {
				c.attach(ch.MatchID)
			}

		case _, ok := <-presence:
			if !ok {
				if presence, err = c.d.Store.SubscribePresence(ctx, nil); err != nil {
					c.d.Log.Warn("presence resubscription failed", zap.String("player", string(me)), zap.Error(err))
					return
				}
				c.sendPlayerList(ctx)
				continue
			}
			c.sendPlayerList(ctx)

		case snap, ok := <-c.snapCh:
			if !ok {
				// dropped as a slow consumer, or the session retired;
				// rejoin if the match is still live
				c.rejoin()
				continue
			}
			c.send(types.ServerMessage{Type: "stateSnapshot", Snapshot: snapshotFor(snap, c.player)})
		}
	}
}

func (c *client) handleIntent(cm types.ClientMessage) {
	switch cm.Type {
	case "proposeChallenge":
		reply := make(chan matchmaking.ProposeReply, 1)
		c.d.Coord.Inbox() <- matchmaking.Propose{From: c.player, To: engine.PlayerID(cm.Target), Reply: reply}
		if r := <-reply; r.Err != nil {
			c.send(errorFor(r.Err))
		}

	case "acceptChallenge":
		reply := make(chan matchmaking.AcceptReply, 1)
		c.d.Coord.Inbox() <- matchmaking.Accept{Player: c.player, ChallengeID: cm.ChallengeID, Reply: reply}
		r := <-reply
		if r.Err != nil {
			c.send(errorFor(r.Err))
			return
		}
		c.attach(r.MatchID)

	case "declineChallenge":
		reply := make(chan error, 1)
		c.d.Coord.Inbox() <- matchmaking.Decline{Player: c.player, ChallengeID: cm.ChallengeID, Reply: reply}
		if err := <-reply; err != nil {
			c.send(errorFor(err))
		}

	case "placeFleet":
		c.submit(engine.Command{Type: engine.CmdPlaceFleet, Player: c.player, Ships: shipsFrom(cm.Ships)})

	case "autoPlace":
		ships, err := game.RandomFleet(c.d.BoardSize, c.d.Manifest, c.rng)
		if err != nil {
			c.send(errorFor(err))
			return
		}
		c.submit(engine.Command{Type: engine.CmdPlaceFleet, Player: c.player, Ships: ships})

	case "ready":
		c.submit(engine.Command{Type: engine.CmdReady, Player: c.player})

	case "fireAt":
		c.submit(engine.Command{
			Type:   engine.CmdFire,
			Player: c.player,
			Target: game.Coord{Row: cm.Row, Col: cm.Col},
			At:     time.Now().UTC(),
		})

	case "quitMatch":
		c.submit(engine.Command{Type: engine.CmdQuit, Player: c.player})

	default:
		c.send(errorMsg("badRequest", "unknown intent type"))
	}
}

// attach joins the player to a match session, leaving any previous one.
func (c *client) attach(matchID string) {
	if c.session != nil && c.session.MatchID() == matchID {
		return
	}
	if c.session != nil {
		c.session.Inbox() <- match.Leave{ClientID: c.clientID}
	}
	reply := make(chan *match.Session, 1)
	c.d.Hub.Inbox() <- hub.EnsureSession{MatchID: matchID, Reply: reply}
	sess := <-reply
	if sess == nil {
		c.send(errorMsg("connectionIssue", "match is unavailable, try again"))
		return
	}
	c.snapCh = make(chan match.Snapshot, 8)
	c.session = sess
	sess.Inbox() <- match.Join{ClientID: c.clientID, Outbox: c.snapCh}
	c.send(types.ServerMessage{Type: "matchStarted", MatchID: matchID})
}

// rejoin re-attaches after the session closed our snapshot channel. A
// nil hub lookup means the match finished and was retired; the final
// snapshot already went out.
func (c *client) rejoin() {
	if c.session == nil {
		c.snapCh = nil
		return
	}
	matchID := c.session.MatchID()
	c.session = nil
	c.snapCh = nil

	reply := make(chan *match.Session, 1)
	c.d.Hub.Inbox() <- hub.GetSession{MatchID: matchID, Reply: reply}
	sess := <-reply
	if sess == nil {
		return
	}
	c.session = sess
	c.snapCh = make(chan match.Snapshot, 8)
	sess.Inbox() <- match.Join{ClientID: c.clientID, Outbox: c.snapCh}
}

func (c *client) submit(cmd engine.Command) {
	if c.session == nil {
		c.send(errorMsg("noMatch", "no active match"))
		return
	}
	reply := make(chan error, 1)
	c.session.Inbox() <- match.Submit{Cmd: cmd, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			c.send(errorFor(err))
		}
	case <-time.After(writeTimeout):
		c.send(errorMsg("connectionIssue", "match session not responding"))
	}
}

// sendPlayerList pushes the coordinator's view of who is challengeable
// right now, refreshed on every presence change.
func (c *client) sendPlayerList(ctx context.Context) {
	reply := make(chan []engine.PlayerID, 1)
	select {
	case c.d.Coord.Inbox() <- matchmaking.GetOnline{Reply: reply}:
	case <-ctx.Done():
		return
	}
	var list []engine.PlayerID
	select {
	case list = <-reply:
	case <-ctx.Done():
		return
	}
	msg := types.ServerMessage{Type: "playerList"}
	for _, p := range list {
		if p == c.player {
			continue
		}
		msg.Players = append(msg.Players, types.PlayerInfo{Name: string(p), Status: string(store.Online)})
	}
	c.send(msg)
}

func (c *client) send(msg types.ServerMessage) {
	select {
	case c.out <- msg:
	default:
		// writer is wedged; the read side will notice the dead conn
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
