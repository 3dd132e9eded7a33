package engine

import (
	"errors"
	"time"

	"battleship-backend/internal/game"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrAlreadyTargeted = errors.New("coordinate already targeted")
var ErrWrongPhase = errors.New("command not valid in this phase")
var ErrMatchFinished = errors.New("match already finished")
var ErrUnknownPlayer = errors.New("player is not part of this match")
var ErrFleetMissing = errors.New("fleet not placed yet")
var ErrAlreadyReady = errors.New("player already signalled ready")
var ErrUnsupportedCommand = errors.New("unsupported command")

// ErrInvariant marks a replayed event that cannot be applied to the
// current state. Sessions treat it as fatal and resync from the full log.
var ErrInvariant = errors.New("invariant violation")

// ErrOutOfBounds re-exported so callers can match on either package.
var ErrOutOfBounds = game.ErrOutOfBounds

type PlayerID string

type Phase string

const (
	PhasePlacement Phase = "placement"
	PhaseFiring    Phase = "firing"
	PhaseFinished  Phase = "finished"
)

type ShotResult string

const (
	ShotHit  ShotResult = "hit"
	ShotMiss ShotResult = "miss"
	ShotSunk ShotResult = "sunk"
	// ShotAlreadyTried never enters the log; it is the wire result the
	// view layer reports when a shot is rejected as a duplicate.
	ShotAlreadyTried ShotResult = "already_tried"
)

// ShotEvent is the authoritative turn record. Replaying a match's full
// shot log from empty state must reproduce identical boards.
type ShotEvent struct {
	Shooter PlayerID   `json:"shooter"`
	Target  game.Coord `json:"target"`
	Result  ShotResult `json:"result"`
	At      time.Time  `json:"at"`
}

type CommandType string

const (
	CmdPlaceFleet CommandType = "PlaceFleet"
	CmdReady      CommandType = "Ready"
	CmdFire       CommandType = "Fire"
	CmdQuit       CommandType = "Quit"
)

type Command struct {
	Type   CommandType
	Player PlayerID
	Ships  []game.Ship
	Target game.Coord
	At     time.Time
}

type EventType string

const (
	EvtMatchCreated  EventType = "MatchCreated"
	EvtFleetPlaced   EventType = "FleetPlaced"
	EvtPlayerReady   EventType = "PlayerReady"
	EvtShotResolved  EventType = "ShotResolved"
	EvtPlayerQuit    EventType = "PlayerQuit"
	EvtMatchFinished EventType = "MatchFinished"
)

// Event is one entry of a match's append-only log, the only thing the
// shared store transports between the two clients.
type Event struct {
	Type     EventType   `json:"type"`
	Player   PlayerID    `json:"player,omitempty"`
	MatchID  string      `json:"match_id,omitempty"`
	Players  [2]PlayerID `json:"players,omitempty"`
	Size     int         `json:"size,omitempty"`
	Manifest []int       `json:"manifest,omitempty"`
	Ships    []game.Ship `json:"ships,omitempty"`
	Shot     *ShotEvent  `json:"shot,omitempty"`
	Winner   PlayerID    `json:"winner,omitempty"`
}

// NewMatchEvent is the first entry of every match log; the matchmaking
// coordinator writes it when a challenge is accepted. Players[0] fires
// first.
func NewMatchEvent(matchID string, a, b PlayerID, size int, manifest []int) Event {
	return Event{
		Type:     EvtMatchCreated,
		MatchID:  matchID,
		Players:  [2]PlayerID{a, b},
		Size:     size,
		Manifest: manifest,
	}
}

type State struct {
	MatchID  string
	Players  [2]PlayerID
	Size     int
	Manifest []int
	Phase    Phase
	Boards   map[PlayerID]*game.Board
	Ready    map[PlayerID]bool
	Shots    []ShotEvent
	Winner   PlayerID
}

func (s State) knows(p PlayerID) bool {
	return p != "" && (p == s.Players[0] || p == s.Players[1])
}

func (s State) Opponent(p PlayerID) PlayerID {
	if p == s.Players[0] {
		return s.Players[1]
	}
	return s.Players[0]
}

// Turn is derived from shot-count parity: Players[0] fires first and
// every resolved shot flips the turn, hit or miss.
func (s State) Turn() PlayerID {
	if s.Phase != PhaseFiring {
		return ""
	}
	return s.Players[len(s.Shots)%2]
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
