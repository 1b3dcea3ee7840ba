package golf

import "encoding/json"

// DefaultHoles is the hole count of a new game.
const DefaultHoles = 18

// StatusActive is the only game status the client writes.
const StatusActive = "active"

type Game struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	HostName string `json:"host_name"`
	Holes    int    `json:"holes"`
	Status   string `json:"status"`
}

type Player struct {
	ID     string `json:"id"`
	GameID string `json:"game_id,omitempty"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

// ScoreEntry is one row of the scores table.
type ScoreEntry struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Hole     int    `json:"hole"`
	Strokes  int    `json:"strokes"`
}

// Scores is the local mirror: player id -> strokes per hole, index = hole-1.
// Zero means "not played yet".
type Scores map[string][]int

func (s Scores) clone() Scores {
	out := make(Scores, len(s))
	for id, row := range s {
		out[id] = append([]int(nil), row...)
	}
	return out
}

// Standing is one leaderboard line.
type Standing struct {
	Player      Player `json:"player"`
	Total       int    `json:"total"`
	CurrentHole int    `json:"currentHole"`
}

// Envelope WS envelope: {"type":"...","payload":{...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// incoming

type CreateGamePayload struct {
	Name string `json:"name"`
}

type JoinGamePayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ScorePayload sets Strokes when present, otherwise applies Delta.
type ScorePayload struct {
	PlayerID string `json:"playerId"`
	Hole     int    `json:"hole"`
	Strokes  *int   `json:"strokes,omitempty"`
	Delta    int    `json:"delta,omitempty"`
}

// HolePayload jumps to Hole when non-zero, otherwise moves by Step (+1/-1).
type HolePayload struct {
	Hole int `json:"hole,omitempty"`
	Step int `json:"step,omitempty"`
}

// outgoing

type StatePayload struct {
	State
	Leaderboard []Standing     `json:"leaderboard"`
	Totals      map[string]int `json:"totals"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
