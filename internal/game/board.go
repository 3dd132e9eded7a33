package game

import "errors"

var ErrOutOfBounds = errors.New("coordinate outside board")
var ErrCellAlreadyShot = errors.New("cell already shot")
var ErrNoFleet = errors.New("board has no fleet placed")

type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type CellState int

const (
	CellEmpty CellState = iota
	CellShip
	CellHit
	CellMiss
	CellSunk
)

func (c CellState) String() string {
	switch c {
	case CellShip:
		return "ship"
	case CellHit:
		return "hit"
	case CellMiss:
		return "miss"
	case CellSunk:
		return "sunk"
	default:
		return "empty"
	}
}

type Ship struct {
	ID     string  `json:"id"`
	Length int     `json:"length"`
	Cells  []Coord `json:"cells"`
	Sunk   bool    `json:"sunk"`
}

// Board is one player's authoritative half of a match: their ships plus
// every shot the opponent has landed on them. Only the engine mutates it.
type Board struct {
	Owner         string              `json:"owner"`
	Size          int                 `json:"size"`
	Ships         []Ship              `json:"ships"`
	ShotsReceived map[Coord]CellState `json:"shots_received"`
}

func NewBoard(owner string, size int) *Board {
	return &Board{
		Owner:         owner,
		Size:          size,
		Ships:         nil,
		ShotsReceived: make(map[Coord]CellState),
	}
}

func (b *Board) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < b.Size && c.Col >= 0 && c.Col < b.Size
}

// SetFleet replaces the whole ship set at once. Callers validate first;
// re-submitting during placement overwrites the previous layout.
func (b *Board) SetFleet(ships []Ship) {
	b.Ships = make([]Ship, len(ships))
	for i, s := range ships {
		b.Ships[i] = s
		b.Ships[i].Cells = append([]Coord(nil), s.Cells...)
		b.Ships[i].Sunk = false
	}
}

func (b *Board) HasFleet() bool { return len(b.Ships) > 0 }

func (b *Board) shipIndexAt(c Coord) int {
	for i := range b.Ships {
		for _, sc := range b.Ships[i].Cells {
			if sc == c {
				return i
			}
		}
	}
	return -1
}

func (b *Board) shipFullyHit(i int) bool {
	for _, sc := range b.Ships[i].Cells {
		if b.ShotsReceived[sc] != CellHit {
			return false
		}
	}
	return true
}

// PeekShot resolves a shot without mutating the board: would it hit, and
// would that hit sink the ship it lands on.
func (b *Board) PeekShot(c Coord) (hit bool, sunk bool, err error) {
	if !b.InBounds(c) {
		return false, false, ErrOutOfBounds
	}
	if _, done := b.ShotsReceived[c]; done {
		return false, false, ErrCellAlreadyShot
	}
	i := b.shipIndexAt(c)
	if i < 0 {
		return false, false, nil
	}
	// Sunk iff every other cell of this ship is already hit.
	for _, sc := range b.Ships[i].Cells {
		if sc == c {
			continue
		}
		if b.ShotsReceived[sc] != CellHit {
			return true, false, nil
		}
	}
	return true, true, nil
}

// ApplyShot records the opponent's shot. Exactly-once per coordinate: a
// repeat returns ErrCellAlreadyShot and changes nothing.
func (b *Board) ApplyShot(c Coord) (hit bool, sunk bool, err error) {
	hit, sunk, err = b.PeekShot(c)
	if err != nil {
		return false, false, err
	}
	if !hit {
		b.ShotsReceived[c] = CellMiss
		return false, false, nil
	}
	b.ShotsReceived[c] = CellHit
	if sunk {
		b.Ships[b.shipIndexAt(c)].Sunk = true
	}
	return hit, sunk, nil
}

// CellAt derives the visible state of one cell. Hit cells of a fully-hit
// ship show as sunk.
func (b *Board) CellAt(c Coord) CellState {
	if st, ok := b.ShotsReceived[c]; ok {
		if st == CellHit {
			if i := b.shipIndexAt(c); i >= 0 && b.Ships[i].Sunk {
				return CellSunk
			}
		}
		return st
	}
	if b.shipIndexAt(c) >= 0 {
		return CellShip
	}
	return CellEmpty
}

func (b *Board) AllSunk() bool {
	if len(b.Ships) == 0 {
		return false
	}
	for i := range b.Ships {
		if !b.Ships[i].Sunk {
			return false
		}
	}
	return true
}

func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	cp := &Board{
		Owner:         b.Owner,
		Size:          b.Size,
		Ships:         make([]Ship, len(b.Ships)),
		ShotsReceived: make(map[Coord]CellState, len(b.ShotsReceived)),
	}
	for i, s := range b.Ships {
		cp.Ships[i] = s
		cp.Ships[i].Cells = append([]Coord(nil), s.Cells...)
	}
	for c, st := range b.ShotsReceived {
		cp.ShotsReceived[c] = st
	}
	return cp
}
