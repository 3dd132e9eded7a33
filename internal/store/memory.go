package store

import (
	"context"
	"sync"

	"battleship-backend/internal/engine"
)

const subBuffer = 16

type challengeSub struct {
	ch     chan Challenge
	pred   func(Challenge) bool
	closed bool
}

type matchSub struct {
	ch     chan EventBatch
	closed bool
}

type presenceSub struct {
	ch     chan Presence
	pred   func(Presence) bool
	closed bool
}

// Memory is an in-process Store with change subscriptions, used in tests
// and single-node deployments. Semantics mirror what a hosted document
// store gives us: last-write-wins documents plus an append-only log per
// match with a sequence check.
type Memory struct {
	mu            sync.Mutex
	challenges    map[string]Challenge
	logs          map[string][]engine.Event
	presence      map[engine.PlayerID]Presence
	challengeSubs map[*challengeSub]struct{}
	matchSubs     map[string]map[*matchSub]struct{}
	presenceSubs  map[*presenceSub]struct{}
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		challenges:    make(map[string]Challenge),
		logs:          make(map[string][]engine.Event),
		presence:      make(map[engine.PlayerID]Presence),
		challengeSubs: make(map[*challengeSub]struct{}),
		matchSubs:     make(map[string]map[*matchSub]struct{}),
		presenceSubs:  make(map[*presenceSub]struct{}),
	}
}

func (m *Memory) PutChallenge(ctx context.Context, c Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[c.ID] = c
	for sub := range m.challengeSubs {
		if sub.closed || (sub.pred != nil && !sub.pred(c)) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			// Slow subscriber: close and drop, consumer resyncs.
			sub.closed = true
			close(sub.ch)
			delete(m.challengeSubs, sub)
		}
	}
	return nil
}

func (m *Memory) GetChallenge(ctx context.Context, id string) (Challenge, error) {
	if err := ctx.Err(); err != nil {
		return Challenge{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) SubscribeChallenges(ctx context.Context, pred func(Challenge) bool) (<-chan Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &challengeSub{ch: make(chan Challenge, subBuffer), pred: pred}
	m.mu.Lock()
	m.challengeSubs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
			delete(m.challengeSubs, sub)
		}
	}()
	return sub.ch, nil
}

func (m *Memory) AppendEvents(ctx context.Context, matchID string, afterSeq int, events []engine.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.logs[matchID]
	if len(log) != afterSeq {
		return ErrSeqConflict
	}
	m.logs[matchID] = append(log, events...)

	batch := EventBatch{Seq: afterSeq, Events: events}
	for sub := range m.matchSubs[matchID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- batch:
		default:
			sub.closed = true
			close(sub.ch)
			delete(m.matchSubs[matchID], sub)
		}
	}
	return nil
}

func (m *Memory) Log(ctx context.Context, matchID string) ([]engine.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Event(nil), m.logs[matchID]...), nil
}

func (m *Memory) SubscribeMatch(ctx context.Context, matchID string) (<-chan EventBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &matchSub{ch: make(chan EventBatch, subBuffer)}
	m.mu.Lock()
	if m.matchSubs[matchID] == nil {
		m.matchSubs[matchID] = make(map[*matchSub]struct{})
	}
	m.matchSubs[matchID][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
			delete(m.matchSubs[matchID], sub)
		}
	}()
	return sub.ch, nil
}

func (m *Memory) PutPresence(ctx context.Context, p Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence[p.Player] = p
	for sub := range m.presenceSubs {
		if sub.closed || (sub.pred != nil && !sub.pred(p)) {
			continue
		}
		select {
		case sub.ch <- p:
		default:
			sub.closed = true
			close(sub.ch)
			delete(m.presenceSubs, sub)
		}
	}
	return nil
}

func (m *Memory) ListPresence(ctx context.Context) ([]Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Presence, 0, len(m.presence))
	for _, p := range m.presence {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) SubscribePresence(ctx context.Context, pred func(Presence) bool) (<-chan Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &presenceSub{ch: make(chan Presence, subBuffer), pred: pred}
	m.mu.Lock()
	m.presenceSubs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
			delete(m.presenceSubs, sub)
		}
	}()
	return sub.ch, nil
}
