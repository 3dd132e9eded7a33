// Package store defines the contract the engine needs from the shared
// real-time document store: put/subscribe for challenges, presence, and
// per-match event logs. Implementations are injected, never global.
package store

import (
	"context"
	"errors"
	"time"

	"battleship-backend/internal/engine"
)

// ErrSeqConflict means the log grew past the sequence the caller wrote
// at. The caller must refetch the log and re-validate before retrying.
var ErrSeqConflict = errors.New("event log sequence conflict")

var ErrNotFound = errors.New("not found")

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

type Challenge struct {
	ID        string          `json:"id"`
	From      engine.PlayerID `json:"from"`
	To        engine.PlayerID `json:"to"`
	Status    ChallengeStatus `json:"status"`
	MatchID   string          `json:"match_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Terminal challenges never change again.
func (c Challenge) Terminal() bool {
	return c.Status == ChallengeAccepted || c.Status == ChallengeDeclined || c.Status == ChallengeExpired
}

type PresenceStatus string

const (
	Online  PresenceStatus = "online"
	Offline PresenceStatus = "offline"
)

type Presence struct {
	Player   engine.PlayerID `json:"player"`
	Status   PresenceStatus  `json:"status"`
	LastSeen time.Time       `json:"last_seen"`
}

// EventBatch is one append to a match log. Seq is the index of the first
// event in the batch within the full log.
type EventBatch struct {
	Seq    int
	Events []engine.Event
}

// Store is the only transport between the two clients of a match. All
// subscriptions live until their ctx is cancelled; slow consumers may be
// dropped (channel closed early), which a consumer must treat as a
// resync signal.
type Store interface {
	PutChallenge(ctx context.Context, c Challenge) error
	GetChallenge(ctx context.Context, id string) (Challenge, error)
	SubscribeChallenges(ctx context.Context, pred func(Challenge) bool) (<-chan Challenge, error)

	// AppendEvents commits events iff the log currently has exactly
	// afterSeq entries; otherwise ErrSeqConflict and nothing is written.
	AppendEvents(ctx context.Context, matchID string, afterSeq int, events []engine.Event) error
	Log(ctx context.Context, matchID string) ([]engine.Event, error)
	SubscribeMatch(ctx context.Context, matchID string) (<-chan EventBatch, error)

	PutPresence(ctx context.Context, p Presence) error
	ListPresence(ctx context.Context) ([]Presence, error)
	SubscribePresence(ctx context.Context, pred func(Presence) bool) (<-chan Presence, error)
}
