// Package relay pumps store subscriptions back into the actors that own
// the corresponding state. It carries no game logic: remote events enter
// a session's inbox and are applied by the same engine path as local
// commands.
package relay

import (
	"context"

	"go.uber.org/zap"

	"battleship-backend/internal/match"
	"battleship-backend/internal/matchmaking"
	"battleship-backend/internal/store"
)

// PumpMatch forwards the match event stream into the session until the
// ctx ends. The store closes slow subscribers, so a closed stream is not
// fatal: the pump resubscribes and nudges the session to resync from the
// full log, which covers whatever the dead stream swallowed.
func PumpMatch(ctx context.Context, st store.Store, matchID string, session *match.Session, log *zap.Logger) error {
	for attempt := 0; ; attempt++ {
		stream, err := st.SubscribeMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if attempt > 0 {
			select {
			case session.Inbox() <- match.Resync{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case batch, ok := <-stream:
				if !ok {
					break drain
				}
				select {
				case session.Inbox() <- match.Remote{Batch: batch}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		log.Warn("match stream dropped, resubscribing", zap.String("match_id", matchID))
	}
}

// PumpChallenges replays remote challenge documents into the
// coordinator, resubscribing if the store drops the stream. Pending
// challenges are short-lived; liveness of the stream is what matters.
func PumpChallenges(ctx context.Context, st store.Store, coord *matchmaking.Coordinator, log *zap.Logger) error {
	for {
		stream, err := st.SubscribeChallenges(ctx, nil)
		if err != nil {
			return err
		}
	drain:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch, ok := <-stream:
				if !ok {
					break drain
				}
				select {
				case coord.Inbox() <- matchmaking.RemoteChallenge{Challenge: ch}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		log.Warn("challenge stream dropped, resubscribing")
	}
}
