package engine

import "battleship-backend/internal/game"

// OpponentView is the viewer's derived picture of the opponent's board,
// rebuilt from the shot log: unknown cells are absent, everything else is
// hit/miss, upgraded to sunk once the whole ship is down. Never
// authoritative.
func OpponentView(s State, viewer PlayerID) map[game.Coord]game.CellState {
	view := make(map[game.Coord]game.CellState, len(s.Shots))
	for _, sh := range s.Shots {
		if sh.Shooter != viewer {
			continue
		}
		if sh.Result == ShotMiss {
			view[sh.Target] = game.CellMiss
		} else {
			view[sh.Target] = game.CellHit
		}
	}
	opp := s.Boards[s.Opponent(viewer)]
	if opp == nil {
		return view
	}
	for i := range opp.Ships {
		if !opp.Ships[i].Sunk {
			continue
		}
		for _, c := range opp.Ships[i].Cells {
			if _, hit := view[c]; hit {
				view[c] = game.CellSunk
			}
		}
	}
	return view
}
