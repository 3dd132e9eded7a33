package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"battleship-backend/internal/game"
)

// Apply validates a command against the current state and, on success,
// returns the events it produced plus the state with those events
// applied. On error the input state is returned untouched. The returned
// events are what the session writes to the shared store.
func Apply(s State, cmd Command) ([]Event, State, error) {
	events, err := decide(s, cmd)
	if err != nil {
		return nil, s, err
	}
	next := s
	for _, ev := range events {
		next, err = Step(next, ev)
		if err != nil {
			// decide and Step disagreeing is a bug, not a caller error
			return nil, s, err
		}
	}
	return events, next, nil
}

func decide(s State, cmd Command) ([]Event, error) {
	if s.Phase == "" {
		return nil, fmt.Errorf("%w: match not initialised", ErrInvariant)
	}
	if !s.knows(cmd.Player) {
		return nil, ErrUnknownPlayer
	}

	switch cmd.Type {
	case CmdPlaceFleet:
		if s.Phase != PhasePlacement {
			return nil, ErrWrongPhase
		}
		if err := game.ValidatePlacement(s.Size, s.Manifest, cmd.Ships); err != nil {
			return nil, err
		}
		return []Event{{Type: EvtFleetPlaced, Player: cmd.Player, Ships: cmd.Ships}}, nil

	case CmdReady:
		if s.Phase != PhasePlacement {
			return nil, ErrWrongPhase
		}
		if !s.Boards[cmd.Player].HasFleet() {
			return nil, ErrFleetMissing
		}
		if s.Ready[cmd.Player] {
			return nil, ErrAlreadyReady
		}
		return []Event{{Type: EvtPlayerReady, Player: cmd.Player}}, nil

	case CmdFire:
		if s.Phase == PhaseFinished {
			return nil, ErrMatchFinished
		}
		if s.Phase != PhaseFiring {
			return nil, ErrWrongPhase
		}
		if cmd.Player != s.Turn() {
			return nil, ErrNotYourTurn
		}
		// Idempotence guard: one recorded shot per shooter per coordinate.
		for _, sh := range s.Shots {
			if sh.Shooter == cmd.Player && sh.Target == cmd.Target {
				return nil, ErrAlreadyTargeted
			}
		}
		target := s.Boards[s.Opponent(cmd.Player)]
		hit, sunk, err := target.PeekShot(cmd.Target)
		if err != nil {
			if errors.Is(err, game.ErrCellAlreadyShot) {
				return nil, ErrAlreadyTargeted
			}
			return nil, err
		}
		result := ShotMiss
		if hit {
			result = ShotHit
		}
		if sunk {
			result = ShotSunk
		}
		at := cmd.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		events := []Event{{
			Type:   EvtShotResolved,
			Player: cmd.Player,
			Shot:   &ShotEvent{Shooter: cmd.Player, Target: cmd.Target, Result: result, At: at},
		}}
		if sunk && wouldFinish(target, cmd.Target) {
			events = append(events, Event{Type: EvtMatchFinished, Winner: cmd.Player})
		}
		return events, nil

	case CmdQuit:
		if s.Phase == PhaseFinished {
			return nil, ErrMatchFinished
		}
		return []Event{
			{Type: EvtPlayerQuit, Player: cmd.Player},
			{Type: EvtMatchFinished, Winner: s.Opponent(cmd.Player)},
		}, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

// Step applies a single event. Live application and log replay both go
// through here, so an event that a legal command could not have produced
// fails with ErrInvariant instead of corrupting the boards.
func Step(s State, ev Event) (State, error) {
	switch ev.Type {
	case EvtMatchCreated:
		if s.Phase != "" {
			return s, fmt.Errorf("%w: duplicate MatchCreated", ErrInvariant)
		}
		if ev.MatchID == "" || ev.Players[0] == "" || ev.Players[1] == "" || ev.Players[0] == ev.Players[1] {
			return s, fmt.Errorf("%w: malformed MatchCreated", ErrInvariant)
		}
		if ev.Size < 1 || len(ev.Manifest) == 0 {
			return s, fmt.Errorf("%w: malformed match config", ErrInvariant)
		}
		return State{
			MatchID:  ev.MatchID,
			Players:  ev.Players,
			Size:     ev.Size,
			Manifest: slices.Clone(ev.Manifest),
			Phase:    PhasePlacement,
			Boards: map[PlayerID]*game.Board{
				ev.Players[0]: game.NewBoard(string(ev.Players[0]), ev.Size),
				ev.Players[1]: game.NewBoard(string(ev.Players[1]), ev.Size),
			},
			Ready: map[PlayerID]bool{},
		}, nil

	case EvtFleetPlaced:
		if s.Phase != PhasePlacement || !s.knows(ev.Player) {
			return s, fmt.Errorf("%w: fleet placed outside placement phase", ErrInvariant)
		}
		if err := game.ValidatePlacement(s.Size, s.Manifest, ev.Ships); err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		next := s
		next.Boards = cloneBoards(s.Boards)
		next.Boards[ev.Player].SetFleet(ev.Ships)
		return next, nil

	case EvtPlayerReady:
		if s.Phase != PhasePlacement || !s.knows(ev.Player) {
			return s, fmt.Errorf("%w: ready outside placement phase", ErrInvariant)
		}
		if !s.Boards[ev.Player].HasFleet() {
			return s, fmt.Errorf("%w: ready without a fleet", ErrInvariant)
		}
		next := s
		next.Ready = map[PlayerID]bool{
			s.Players[0]: s.Ready[s.Players[0]],
			s.Players[1]: s.Ready[s.Players[1]],
		}
		next.Ready[ev.Player] = true
		if next.Ready[s.Players[0]] && next.Ready[s.Players[1]] {
			next.Phase = PhaseFiring
		}
		return next, nil

	case EvtShotResolved:
		if s.Phase != PhaseFiring {
			return s, fmt.Errorf("%w: shot outside firing phase", ErrInvariant)
		}
		if ev.Shot == nil || !s.knows(ev.Shot.Shooter) {
			return s, fmt.Errorf("%w: malformed shot event", ErrInvariant)
		}
		if ev.Shot.Shooter != s.Turn() {
			return s, fmt.Errorf("%w: shot replayed out of turn", ErrInvariant)
		}
		next := s
		next.Boards = cloneBoards(s.Boards)
		target := next.Boards[s.Opponent(ev.Shot.Shooter)]
		hit, sunk, err := target.ApplyShot(ev.Shot.Target)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		got := ShotMiss
		if hit {
			got = ShotHit
		}
		if sunk {
			got = ShotSunk
		}
		if got != ev.Shot.Result {
			return s, fmt.Errorf("%w: recorded result %s, replay resolved %s", ErrInvariant, ev.Shot.Result, got)
		}
		next.Shots = append(append([]ShotEvent(nil), s.Shots...), *ev.Shot)
		return next, nil

	case EvtPlayerQuit:
		if s.Phase == PhaseFinished || !s.knows(ev.Player) {
			return s, fmt.Errorf("%w: quit on finished match", ErrInvariant)
		}
		return s, nil

	case EvtMatchFinished:
		if s.Phase == PhaseFinished {
			return s, fmt.Errorf("%w: match finished twice", ErrInvariant)
		}
		if !s.knows(ev.Winner) {
			return s, fmt.Errorf("%w: winner is not a participant", ErrInvariant)
		}
		next := s
		next.Phase = PhaseFinished
		next.Winner = ev.Winner
		return next, nil

	default:
		return s, fmt.Errorf("%w: unknown event type %q", ErrInvariant, ev.Type)
	}
}

// Reduce rebuilds a match from its full event log. Same Step path as live
// application, so replay is idempotent and order-preserving.
func Reduce(events []Event) (State, error) {
	var s State
	for i, ev := range events {
		next, err := Step(s, ev)
		if err != nil {
			return s, fmt.Errorf("event %d (%s): %w", i, ev.Type, err)
		}
		s = next
	}
	return s, nil
}

// wouldFinish reports whether sinking the ship at c leaves no ship
// afloat on b.
func wouldFinish(b *game.Board, c game.Coord) bool {
	for i := range b.Ships {
		if b.Ships[i].Sunk {
			continue
		}
		if !shipContains(b.Ships[i], c) {
			return false
		}
	}
	return true
}

func shipContains(s game.Ship, c game.Coord) bool {
	for _, sc := range s.Cells {
		if sc == c {
			return true
		}
	}
	return false
}

func cloneBoards(boards map[PlayerID]*game.Board) map[PlayerID]*game.Board {
	cp := make(map[PlayerID]*game.Board, len(boards))
	for p, b := range boards {
		cp[p] = b.Clone()
	}
	return cp
}
