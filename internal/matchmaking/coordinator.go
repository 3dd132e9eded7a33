// Package matchmaking owns the challenge lifecycle: propose, accept,
// decline, expire. An accepted challenge mints a match and writes its
// first log entry to the shared store.
package matchmaking

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"battleship-backend/internal/engine"
	"battleship-backend/internal/store"
)

var ErrSelfChallenge = errors.New("cannot challenge yourself")
var ErrTargetOffline = errors.New("target player is offline")
var ErrChallengePending = errors.New("a challenge between these players is already pending")
var ErrChallengeNotFound = errors.New("challenge not found")
var ErrNotYourChallenge = errors.New("only the challenged player may respond")
var ErrChallengeClosed = errors.New("challenge is no longer pending")

const storeTimeout = 3 * time.Second

type Config struct {
	BoardSize    int
	Manifest     []int
	ChallengeTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.BoardSize == 0 {
		c.BoardSize = 10
	}
	if len(c.Manifest) == 0 {
		c.Manifest = []int{5, 4, 3, 3, 2}
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 60 * time.Second
	}
	return c
}

// MatchCreated is emitted once per accepted challenge; the hub consumes
// it to boot the match session.
type MatchCreated struct {
	MatchID string
	Players [2]engine.PlayerID
}

type Msg interface{ isCoordMsg() }

type Propose struct {
	From, To engine.PlayerID
	Reply    chan ProposeReply
}

type ProposeReply struct {
	ChallengeID string
	Err         error
}

type Accept struct {
	Player      engine.PlayerID
	ChallengeID string
	Reply       chan AcceptReply
}

type AcceptReply struct {
	MatchID string
	Err     error
}

type Decline struct {
	Player      engine.PlayerID
	ChallengeID string
	Reply       chan error
}

type SetPresence struct {
	Player engine.PlayerID
	Online bool
}

type GetOnline struct {
	Reply chan []engine.PlayerID
}

// RemoteChallenge replays a challenge document observed on the store
// (another node's transition, or our own echo).
type RemoteChallenge struct {
	Challenge store.Challenge
}

type Shutdown struct{}

type expire struct{ id string }

func (Propose) isCoordMsg()         {}
func (Accept) isCoordMsg()          {}
func (Decline) isCoordMsg()         {}
func (SetPresence) isCoordMsg()     {}
func (GetOnline) isCoordMsg()       {}
func (RemoteChallenge) isCoordMsg() {}
func (Shutdown) isCoordMsg()        {}
func (expire) isCoordMsg()          {}

type Coordinator struct {
	inbox      chan Msg
	st         store.Store
	clk        clock.Clock
	cfg        Config
	log        *zap.Logger
	matches    chan MatchCreated
	challenges map[string]store.Challenge
	online     map[engine.PlayerID]bool
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, st store.Store, clk clock.Clock, cfg Config, log *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox:      make(chan Msg, 64),
		st:         st,
		clk:        clk,
		cfg:        cfg.withDefaults(),
		log:        log,
		matches:    make(chan MatchCreated, 16),
		challenges: make(map[string]store.Challenge),
		online:     make(map[engine.PlayerID]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
	go c.loop()
	return c
}

func (c *Coordinator) Inbox() chan<- Msg            { return c.inbox }
func (c *Coordinator) Matches() <-chan MatchCreated { return c.matches }

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Propose:
				msg.Reply <- c.propose(msg.From, msg.To)

			case Accept:
				msg.Reply <- c.accept(msg.Player, msg.ChallengeID)

			case Decline:
				msg.Reply <- c.decline(msg.Player, msg.ChallengeID)

			case SetPresence:
				c.setPresence(msg.Player, msg.Online)

			case GetOnline:
				out := make([]engine.PlayerID, 0, len(c.online))
				for p, on := range c.online {
					if on {
						out = append(out, p)
					}
				}
				msg.Reply <- out

			case RemoteChallenge:
				c.applyRemote(msg.Challenge)

			case expire:
				c.expire(msg.id)

			case Shutdown:
				c.cancel()
				return
			}
		}
	}
}

func (c *Coordinator) propose(from, to engine.PlayerID) ProposeReply {
	if from == to {
		return ProposeReply{Err: ErrSelfChallenge}
	}
	if !c.online[to] {
		return ProposeReply{Err: ErrTargetOffline}
	}
	for _, ch := range c.challenges {
		if ch.Status != store.ChallengePending {
			continue
		}
		if (ch.From == from && ch.To == to) || (ch.From == to && ch.To == from) {
			return ProposeReply{Err: ErrChallengePending}
		}
	}

	ch := store.Challenge{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Status:    store.ChallengePending,
		CreatedAt: c.clk.Now(),
	}
	if err := c.put(ch); err != nil {
		return ProposeReply{Err: err}
	}
	c.challenges[ch.ID] = ch

	id := ch.ID
	c.clk.AfterFunc(c.cfg.ChallengeTTL, func() {
		select {
		case c.inbox <- expire{id: id}:
		case <-c.ctx.Done():
		}
	})
	c.log.Info("challenge proposed",
		zap.String("challenge_id", ch.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return ProposeReply{ChallengeID: ch.ID}
}

func (c *Coordinator) accept(player engine.PlayerID, id string) AcceptReply {
	ch, ok := c.challenges[id]
	if !ok {
		return AcceptReply{Err: ErrChallengeNotFound}
	}
	if ch.Status != store.ChallengePending {
		return AcceptReply{Err: ErrChallengeClosed}
	}
	if player != ch.To {
		return AcceptReply{Err: ErrNotYourChallenge}
	}

	matchID, err := newMatchID()
	if err != nil {
		return AcceptReply{Err: err}
	}

	// Write the match log entry first, so anyone who sees the accepted
	// challenge finds the match already created.
	created := engine.NewMatchEvent(matchID, ch.From, ch.To, c.cfg.BoardSize, c.cfg.Manifest)
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	err = c.st.AppendEvents(ctx, matchID, 0, []engine.Event{created})
	cancel()
	if err != nil {
		return AcceptReply{Err: err}
	}

	ch.Status = store.ChallengeAccepted
	ch.MatchID = matchID
	if err := c.put(ch); err != nil {
		return AcceptReply{Err: err}
	}
	c.challenges[id] = ch
	c.emitMatch(MatchCreated{MatchID: matchID, Players: [2]engine.PlayerID{ch.From, ch.To}})
	c.log.Info("challenge accepted",
		zap.String("challenge_id", id),
		zap.String("match_id", matchID))
	return AcceptReply{MatchID: matchID}
}

func (c *Coordinator) decline(player engine.PlayerID, id string) error {
	ch, ok := c.challenges[id]
	if !ok {
		return ErrChallengeNotFound
	}
	if ch.Status != store.ChallengePending {
		return ErrChallengeClosed
	}
	if player != ch.To {
		return ErrNotYourChallenge
	}
	ch.Status = store.ChallengeDeclined
	if err := c.put(ch); err != nil {
		return err
	}
	c.challenges[id] = ch
	c.log.Info("challenge declined", zap.String("challenge_id", id))
	return nil
}

func (c *Coordinator) expire(id string) {
	ch, ok := c.challenges[id]
	if !ok || ch.Status != store.ChallengePending {
		return
	}
	ch.Status = store.ChallengeExpired
	if err := c.put(ch); err != nil {
		c.log.Warn("could not persist challenge expiry", zap.String("challenge_id", id), zap.Error(err))
		return
	}
	c.challenges[id] = ch
	c.log.Info("challenge expired", zap.String("challenge_id", id))
}

// applyRemote folds a store-observed challenge into local state. Our own
// writes echo back with an identical status and are skipped; a remotely
// accepted challenge still needs a local session, so it emits
// MatchCreated too.
func (c *Coordinator) applyRemote(ch store.Challenge) {
	prev, known := c.challenges[ch.ID]
	if known && prev.Status == ch.Status {
		return
	}
	if known && prev.Terminal() {
		// terminal states never change; a conflicting remote write loses
		return
	}
	c.challenges[ch.ID] = ch
	if ch.Status == store.ChallengeAccepted && ch.MatchID != "" {
		c.emitMatch(MatchCreated{MatchID: ch.MatchID, Players: [2]engine.PlayerID{ch.From, ch.To}})
	}
}

func (c *Coordinator) setPresence(player engine.PlayerID, online bool) {
	c.online[player] = online
	status := store.Offline
	if online {
		status = store.Online
	}
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	err := c.st.PutPresence(ctx, store.Presence{Player: player, Status: status, LastSeen: c.clk.Now()})
	cancel()
	if err != nil {
		c.log.Warn("could not persist presence", zap.String("player", string(player)), zap.Error(err))
	}
}

func (c *Coordinator) emitMatch(mc MatchCreated) {
	select {
	case c.matches <- mc:
	default:
		c.log.Warn("match channel full, dropping notification", zap.String("match_id", mc.MatchID))
	}
}

func (c *Coordinator) put(ch store.Challenge) error {
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	return c.st.PutChallenge(ctx, ch)
}

func newMatchID() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
