package types

// Client -> Server intents. Type is one of:
//   proposeChallenge  (target)
//   acceptChallenge   (challenge_id)
//   declineChallenge  (challenge_id)
//   placeFleet        (ships)
//   autoPlace
//   ready
//   fireAt            (row, col)
//   quitMatch
type ClientMessage struct {
	Type        string          `json:"type"`
	Target      string          `json:"target,omitempty"`
	ChallengeID string          `json:"challenge_id,omitempty"`
	Ships       []ShipPlacement `json:"ships,omitempty"`
	Row         int             `json:"row,omitempty"`
	Col         int             `json:"col,omitempty"`
}

type ShipPlacement struct {
	Cells []Cell `json:"cells"`
}

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Server -> Client. Type is one of "playerList", "challenge",
// "matchStarted", "stateSnapshot", "error".
type ServerMessage struct {
	Type      string         `json:"type"`
	Players   []PlayerInfo   `json:"players,omitempty"`
	Challenge *ChallengeInfo `json:"challenge,omitempty"`
	MatchID   string         `json:"match_id,omitempty"`
	Snapshot  *MatchSnapshot `json:"snapshot,omitempty"`
	Code      string         `json:"code,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type PlayerInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type ChallengeInfo struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Status  string `json:"status"`
	MatchID string `json:"match_id,omitempty"`
}

// MatchSnapshot is the read-only view of one match for one player. Board
// is the player's own grid (ships visible); OpponentView only shows what
// their shots have revealed.
//
// Grid cells: "~" unknown/empty, "S" ship, "X" hit, "O" miss, "#" sunk.
type MatchSnapshot struct {
	MatchID       string     `json:"match_id"`
	Version       int        `json:"version"`
	Phase         string     `json:"phase"`
	Turn          string     `json:"turn,omitempty"`
	Winner        string     `json:"winner,omitempty"`
	You           string     `json:"you"`
	YouReady      bool       `json:"you_ready"`
	OpponentReady bool       `json:"opponent_ready"`
	Board         [][]string `json:"board"`
	OpponentView  [][]string `json:"opponent_view"`
	ShotLog       []ShotInfo `json:"shot_log"`
}

type ShotInfo struct {
	Shooter string `json:"shooter"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Result  string `json:"result"`
}
