package game

import (
	"fmt"
	"math/rand"
	"slices"
	"strconv"
)

type PlacementReason string

const (
	ReasonOverlap       PlacementReason = "overlap"
	ReasonOutOfBounds   PlacementReason = "out_of_bounds"
	ReasonWrongCount    PlacementReason = "wrong_ship_count"
	ReasonNonContiguous PlacementReason = "non_contiguous"
)

type PlacementError struct {
	Reason PlacementReason
	Detail string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("invalid placement (%s): %s", e.Reason, e.Detail)
}

// ValidatePlacement checks a proposed fleet against the match manifest:
// right multiset of lengths, straight contiguous lines, in bounds, no
// shared cells. Pure; the board is untouched.
func ValidatePlacement(size int, manifest []int, ships []Ship) error {
	if len(ships) != len(manifest) {
		return &PlacementError{
			Reason: ReasonWrongCount,
			Detail: fmt.Sprintf("want %d ships, got %d", len(manifest), len(ships)),
		}
	}

	wantLengths := slices.Clone(manifest)
	gotLengths := make([]int, 0, len(ships))
	for _, s := range ships {
		gotLengths = append(gotLengths, s.Length)
	}
	slices.Sort(wantLengths)
	slices.Sort(gotLengths)
	if !slices.Equal(wantLengths, gotLengths) {
		return &PlacementError{
			Reason: ReasonWrongCount,
			Detail: fmt.Sprintf("ship lengths %v do not match manifest %v", gotLengths, wantLengths),
		}
	}

	occupied := make(map[Coord]string, len(ships)*4)
	for _, s := range ships {
		if err := checkShape(s); err != nil {
			return err
		}
		for _, c := range s.Cells {
			if c.Row < 0 || c.Row >= size || c.Col < 0 || c.Col >= size {
				return &PlacementError{
					Reason: ReasonOutOfBounds,
					Detail: fmt.Sprintf("ship %s cell (%d,%d) outside %dx%d board", s.ID, c.Row, c.Col, size, size),
				}
			}
			if other, taken := occupied[c]; taken {
				return &PlacementError{
					Reason: ReasonOverlap,
					Detail: fmt.Sprintf("ship %s overlaps %s at (%d,%d)", s.ID, other, c.Row, c.Col),
				}
			}
			occupied[c] = s.ID
		}
	}
	return nil
}

// checkShape: cells count matches length, and they form one straight
// horizontal or vertical run. Single-cell ships pass trivially.
func checkShape(s Ship) error {
	if len(s.Cells) != s.Length || s.Length < 1 {
		return &PlacementError{
			Reason: ReasonNonContiguous,
			Detail: fmt.Sprintf("ship %s has %d cells for length %d", s.ID, len(s.Cells), s.Length),
		}
	}
	if s.Length == 1 {
		return nil
	}

	cells := slices.Clone(s.Cells)
	sameRow, sameCol := true, true
	for _, c := range cells[1:] {
		if c.Row != cells[0].Row {
			sameRow = false
		}
		if c.Col != cells[0].Col {
			sameCol = false
		}
	}
	switch {
	case sameRow:
		slices.SortFunc(cells, func(a, b Coord) int { return a.Col - b.Col })
		for i := 1; i < len(cells); i++ {
			if cells[i].Col != cells[i-1].Col+1 {
				return nonContiguous(s)
			}
		}
	case sameCol:
		slices.SortFunc(cells, func(a, b Coord) int { return a.Row - b.Row })
		for i := 1; i < len(cells); i++ {
			if cells[i].Row != cells[i-1].Row+1 {
				return nonContiguous(s)
			}
		}
	default:
		return nonContiguous(s)
	}
	return nil
}

func nonContiguous(s Ship) error {
	return &PlacementError{
		Reason: ReasonNonContiguous,
		Detail: fmt.Sprintf("ship %s is not a straight contiguous line", s.ID),
	}
}

const maxPlacementAttempts = 10000

// RandomFleet builds a valid random layout for the manifest: pick an
// orientation and origin, retry on overlap. Used by the autoPlace intent
// so a player can skip manual placement.
func RandomFleet(size int, manifest []int, rng *rand.Rand) ([]Ship, error) {
	ships := make([]Ship, 0, len(manifest))
	occupied := make(map[Coord]bool)

	for i, length := range manifest {
		if length > size {
			return nil, fmt.Errorf("ship length %d does not fit a %dx%d board", length, size, size)
		}
		placed := false
		for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
			horizontal := rng.Intn(2) == 0
			var cells []Coord
			if horizontal {
				row := rng.Intn(size)
				col := rng.Intn(size - length + 1)
				for j := 0; j < length; j++ {
					cells = append(cells, Coord{Row: row, Col: col + j})
				}
			} else {
				row := rng.Intn(size - length + 1)
				col := rng.Intn(size)
				for j := 0; j < length; j++ {
					cells = append(cells, Coord{Row: row + j, Col: col})
				}
			}
			if overlapsAny(cells, occupied) {
				continue
			}
			for _, c := range cells {
				occupied[c] = true
			}
			ships = append(ships, Ship{ID: "ship" + strconv.Itoa(i), Length: length, Cells: cells})
			placed = true
			break
		}
		if !placed {
			return nil, fmt.Errorf("could not place ship of length %d after %d attempts", length, maxPlacementAttempts)
		}
	}
	return ships, nil
}

func overlapsAny(cells []Coord, occupied map[Coord]bool) bool {
	for _, c := range cells {
		if occupied[c] {
			return true
		}
	}
	return false
}
