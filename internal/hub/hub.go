package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"battleship-backend/internal/archive"
	"battleship-backend/internal/engine"
	"battleship-backend/internal/match"
	"battleship-backend/internal/relay"
	"battleship-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type EnsureSession struct {
	MatchID string
	Reply   chan *match.Session
}

type GetSession struct {
	MatchID string
	Reply   chan *match.Session
}

type RemoveSession struct {
	MatchID string
}

type ShutdownHub struct{}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub is the registry of live match sessions. Booting a session also
// starts its relay pump, so remote events start flowing immediately.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*match.Session
	st       store.Store
	arch     archive.Archiver
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, arch archive.Archiver, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*match.Session),
		st:       st,
		arch:     arch,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if sess := h.sessions[msg.MatchID]; sess != nil {
					msg.Reply <- sess
					break
				}
				msg.Reply <- h.boot(msg.MatchID)

			case GetSession:
				msg.Reply <- h.sessions[msg.MatchID] // may be nil

			case RemoveSession:
				if sess := h.sessions[msg.MatchID]; sess != nil {
					sess.Inbox() <- match.Shutdown{}
					delete(h.sessions, msg.MatchID)
				}

			case ShutdownHub:
				for _, sess := range h.sessions {
					sess.Inbox() <- match.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) boot(matchID string) *match.Session {
	sess, err := match.New(h.ctx, matchID, h.st, h.log, h.finished(matchID))
	if err != nil {
		h.log.Error("could not boot match session",
			zap.String("match_id", matchID), zap.Error(err))
		return nil
	}
	h.sessions[matchID] = sess

	go func() {
		if err := relay.PumpMatch(h.ctx, h.st, matchID, sess, h.log); err != nil && h.ctx.Err() == nil {
			h.log.Warn("match relay ended", zap.String("match_id", matchID), zap.Error(err))
		}
	}()
	return sess
}

// finished archives the terminal state and retires the session. Clients
// already hold the final snapshot in their outboxes by the time this
// runs.
func (h *Hub) finished(matchID string) func(engine.State) {
	return func(final engine.State) {
		if h.arch != nil {
			ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
			if err := h.arch.Archive(ctx, final); err != nil {
				h.log.Error("could not archive match",
					zap.String("match_id", matchID), zap.Error(err))
			}
			cancel()
		}
		select {
		case h.inbox <- RemoveSession{MatchID: matchID}:
		case <-h.ctx.Done():
		}
	}
}
