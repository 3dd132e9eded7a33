// Package match hosts the single writer for one match: every local
// command and every replayed remote event goes through one goroutine, so
// the engine state is never mutated concurrently.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"battleship-backend/internal/engine"
	"battleship-backend/internal/store"
)

// ErrStaleState: the local optimistic state lost against the store. The
// session has already resynced; the caller should re-read and retry.
var ErrStaleState = errors.New("stale state, resynced from store")

// ErrTransport: the store write failed or timed out. Nothing was
// committed; the action is retryable.
var ErrTransport = errors.New("store unreachable")

var ErrUnknownMatch = errors.New("match has no log in store")

const defaultWriteTimeout = 3 * time.Second

type Msg interface{ isSessionMsg() }

type Submit struct {
	Cmd   engine.Command
	Reply chan error
}

// Remote is a batch observed on the store's match stream, either the
// opponent's events or the echo of our own write.
type Remote struct {
	Batch store.EventBatch
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot
}

type Leave struct{ ClientID string }

type GetState struct {
	Reply chan View
}

// Resync forces a refresh from the full store log, used when a store
// subscription was interrupted and batches may have been missed.
type Resync struct{}

type Shutdown struct{}

func (Submit) isSessionMsg()   {}
func (Remote) isSessionMsg()   {}
func (Join) isSessionMsg()     {}
func (Leave) isSessionMsg()    {}
func (GetState) isSessionMsg() {}
func (Resync) isSessionMsg()   {}
func (Shutdown) isSessionMsg() {}

type Snapshot struct {
	Version int
	State   engine.State
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Session struct {
	matchID       string
	inbox         chan Msg
	st            store.Store
	state         engine.State
	version       int
	clients       map[string]chan Snapshot
	log           *zap.Logger
	onFinished    func(engine.State)
	finishedFired bool
	writeTimeout  time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// New loads the match log from the store and starts the session loop.
// The log must at least contain the MatchCreated entry.
func New(parent context.Context, matchID string, st store.Store, logger *zap.Logger, onFinished func(engine.State)) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	fetchCtx, fetchCancel := context.WithTimeout(ctx, defaultWriteTimeout)
	log, err := st.Log(fetchCtx, matchID)
	fetchCancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(log) == 0 {
		cancel()
		return nil, ErrUnknownMatch
	}
	state, err := engine.Reduce(log)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		matchID:      matchID,
		inbox:        make(chan Msg, 64),
		st:           st,
		state:        state,
		version:      len(log),
		clients:      make(map[string]chan Snapshot),
		log:          logger,
		onFinished:   onFinished,
		writeTimeout: defaultWriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	go s.loop()
	return s, nil
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }
func (s *Session) MatchID() string   { return s.matchID }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- Snapshot{Version: s.version, State: s.state}

			case Leave:
				delete(s.clients, msg.ClientID)

			case Submit:
				msg.Reply <- s.submit(msg.Cmd)

			case Remote:
				s.remote(msg.Batch)

			case GetState:
				msg.Reply <- View{Version: s.version, NumClients: len(s.clients), State: s.state}

			case Resync:
				if err := s.resync(); err != nil {
					s.log.Error("resync failed", zap.String("match_id", s.matchID), zap.Error(err))
					break
				}
				s.broadcast()
				s.maybeFinish()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// submit applies a local command optimistically, then commits its events
// to the store at the current sequence. The store is the source of
// truth: losing the sequence race means our optimistic state was stale.
func (s *Session) submit(cmd engine.Command) error {
	events, next, err := engine.Apply(s.state, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	err = s.st.AppendEvents(ctx, s.matchID, s.version, events)
	cancel()

	if errors.Is(err, store.ErrSeqConflict) {
		if rerr := s.resync(); rerr != nil {
			return rerr
		}
		s.broadcast()
		return ErrStaleState
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	s.state = next
	s.version += len(events)
	s.broadcast()
	s.maybeFinish()
	return nil
}

// remote folds a store batch into local state. Echoes of our own writes
// arrive below the current version and are skipped; a gap means we
// missed something and the whole log is refetched.
func (s *Session) remote(b store.EventBatch) {
	if b.Seq+len(b.Events) <= s.version {
		return
	}
	if b.Seq != s.version {
		s.log.Warn("match stream gap, resyncing",
			zap.String("match_id", s.matchID),
			zap.Int("batch_seq", b.Seq),
			zap.Int("version", s.version))
		if err := s.resync(); err != nil {
			s.log.Error("resync failed", zap.String("match_id", s.matchID), zap.Error(err))
			return
		}
		s.broadcast()
		s.maybeFinish()
		return
	}

	for _, ev := range b.Events {
		next, err := engine.Step(s.state, ev)
		if err != nil {
			// Replay produced an impossible state: distrust everything
			// local and rebuild from the log.
			s.log.Error("remote event violates invariants, resyncing",
				zap.String("match_id", s.matchID),
				zap.String("event", string(ev.Type)),
				zap.Error(err))
			if rerr := s.resync(); rerr != nil {
				s.log.Error("resync failed", zap.String("match_id", s.matchID), zap.Error(rerr))
				return
			}
			break
		}
		s.state = next
		s.version++
	}
	s.broadcast()
	s.maybeFinish()
}

func (s *Session) resync() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	log, err := s.st.Log(ctx, s.matchID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	state, err := engine.Reduce(log)
	if err != nil {
		return err
	}
	s.state = state
	s.version = len(log)
	return nil
}

func (s *Session) maybeFinish() {
	if s.state.Phase != engine.PhaseFinished || s.finishedFired {
		return
	}
	s.finishedFired = true
	s.log.Info("match finished",
		zap.String("match_id", s.matchID),
		zap.String("winner", string(s.state.Winner)))
	if s.onFinished != nil {
		go s.onFinished(s.state)
	}
}

func (s *Session) broadcast() {
	snap := Snapshot{Version: s.version, State: s.state}
	for id, ch := range s.clients {
		select {
		case ch <- snap:
		default:
			// slow client, drop it
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}
