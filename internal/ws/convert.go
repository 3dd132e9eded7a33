package ws

import (
	"errors"
	"strconv"

	"battleship-backend/internal/engine"
	"battleship-backend/internal/game"
	"battleship-backend/internal/match"
	"battleship-backend/internal/matchmaking"
	"battleship-backend/internal/store"
	"battleship-backend/pkg/types"
)

func shipsFrom(placements []types.ShipPlacement) []game.Ship {
	ships := make([]game.Ship, 0, len(placements))
	for i, p := range placements {
		cells := make([]game.Coord, 0, len(p.Cells))
		for _, c := range p.Cells {
			cells = append(cells, game.Coord{Row: c.Row, Col: c.Col})
		}
		ships = append(ships, game.Ship{
			ID:     "ship" + strconv.Itoa(i),
			Length: len(cells),
			Cells:  cells,
		})
	}
	return ships
}

func challengeInfo(ch store.Challenge) *types.ChallengeInfo {
	return &types.ChallengeInfo{
		ID:      ch.ID,
		From:    string(ch.From),
		To:      string(ch.To),
		Status:  string(ch.Status),
		MatchID: ch.MatchID,
	}
}

func cellSymbol(st game.CellState) string {
	switch st {
	case game.CellShip:
		return "S"
	case game.CellHit:
		return "X"
	case game.CellMiss:
		return "O"
	case game.CellSunk:
		return "#"
	default:
		return "~"
	}
}

// snapshotFor renders one player's view of a session snapshot: own board
// in full, opponent redacted to what this player's shots revealed.
func snapshotFor(snap match.Snapshot, viewer engine.PlayerID) *types.MatchSnapshot {
	s := snap.State
	out := &types.MatchSnapshot{
		MatchID:       s.MatchID,
		Version:       snap.Version,
		Phase:         string(s.Phase),
		Turn:          string(s.Turn()),
		Winner:        string(s.Winner),
		You:           string(viewer),
		YouReady:      s.Ready[viewer],
		OpponentReady: s.Ready[s.Opponent(viewer)],
	}

	own := s.Boards[viewer]
	view := engine.OpponentView(s, viewer)
	out.Board = make([][]string, s.Size)
	out.OpponentView = make([][]string, s.Size)
	for row := 0; row < s.Size; row++ {
		out.Board[row] = make([]string, s.Size)
		out.OpponentView[row] = make([]string, s.Size)
		for col := 0; col < s.Size; col++ {
			c := game.Coord{Row: row, Col: col}
			if own != nil {
				out.Board[row][col] = cellSymbol(own.CellAt(c))
			} else {
				out.Board[row][col] = "~"
			}
			if st, known := view[c]; known {
				out.OpponentView[row][col] = cellSymbol(st)
			} else {
				out.OpponentView[row][col] = "~"
			}
		}
	}

	for _, sh := range s.Shots {
		out.ShotLog = append(out.ShotLog, types.ShotInfo{
			Shooter: string(sh.Shooter),
			Row:     sh.Target.Row,
			Col:     sh.Target.Col,
			Result:  string(sh.Result),
		})
	}
	return out
}

func errorMsg(code, detail string) types.ServerMessage {
	return types.ServerMessage{Type: "error", Code: code, Error: detail}
}

// errorFor maps a rejected transition to a wire error code the view can
// act on: re-prompt, ignore, resync, or show a connection banner.
func errorFor(err error) types.ServerMessage {
	var pe *game.PlacementError
	switch {
	case errors.As(err, &pe):
		return errorMsg("invalidPlacement", pe.Error())
	case errors.Is(err, engine.ErrOutOfBounds):
		return errorMsg("outOfBounds", err.Error())
	case errors.Is(err, engine.ErrNotYourTurn):
		return errorMsg("notYourTurn", err.Error())
	case errors.Is(err, engine.ErrAlreadyTargeted):
		return errorMsg("alreadyTargeted", string(engine.ShotAlreadyTried))
	case errors.Is(err, engine.ErrWrongPhase):
		return errorMsg("wrongPhase", err.Error())
	case errors.Is(err, engine.ErrMatchFinished):
		return errorMsg("matchFinished", err.Error())
	case errors.Is(err, engine.ErrFleetMissing):
		return errorMsg("fleetMissing", err.Error())
	case errors.Is(err, engine.ErrAlreadyReady):
		return errorMsg("alreadyReady", err.Error())
	case errors.Is(err, engine.ErrUnknownPlayer):
		return errorMsg("unknownPlayer", err.Error())
	case errors.Is(err, engine.ErrInvariant):
		return errorMsg("invariantViolation", err.Error())
	case errors.Is(err, match.ErrStaleState):
		return errorMsg("staleResync", err.Error())
	case errors.Is(err, match.ErrTransport):
		return errorMsg("connectionIssue", err.Error())
	case errors.Is(err, matchmaking.ErrSelfChallenge),
		errors.Is(err, matchmaking.ErrTargetOffline),
		errors.Is(err, matchmaking.ErrChallengePending),
		errors.Is(err, matchmaking.ErrChallengeNotFound),
		errors.Is(err, matchmaking.ErrNotYourChallenge),
		errors.Is(err, matchmaking.ErrChallengeClosed):
		return errorMsg("challengeRejected", err.Error())
	default:
		return errorMsg("internal", err.Error())
	}
}
