package golf

// State is the client's whole view of the session. Values handed out by the
// Synchronizer are copies; mutating them has no effect.
type State struct {
	Screen  Screen   `json:"screen"`
	Game    *Game    `json:"game"`
	Player  *Player  `json:"player"`
	Players []Player `json:"players"`
	Scores  Scores   `json:"scores"`
	Hole    int      `json:"hole"`
	Loading bool     `json:"loading"`
}

// Snapshot is the part of State that survives a restart.
type Snapshot struct {
	Game   Game
	Player Player
	Screen Screen
	Hole   int
}

func initialState() State {
	return State{Screen: ScreenHome, Scores: Scores{}, Hole: 1}
}

func (s State) clone() State {
	out := s
	if s.Game != nil {
		g := *s.Game
		out.Game = &g
	}
	if s.Player != nil {
		p := *s.Player
		out.Player = &p
	}
	out.Players = append([]Player(nil), s.Players...)
	out.Scores = s.Scores.clone()
	return out
}

// Holes is the active game's hole count, DefaultHoles when unknown.
func (s State) Holes() int {
	if s.Game != nil && s.Game.Holes > 0 {
		return s.Game.Holes
	}
	return DefaultHoles
}

func (s State) PlayerTotal(playerID string) int {
	return PlayerTotal(s.Scores, playerID)
}

func (s State) Leaderboard() []Standing {
	if s.Game == nil {
		return nil
	}
	return Leaderboard(s.Players, s.Scores, s.Holes())
}

// Snapshot reports the resumable part of the state; ok is false without a
// game or player.
func (s State) Snapshot() (Snapshot, bool) {
	if s.Game == nil || s.Player == nil {
		return Snapshot{}, false
	}
	return Snapshot{Game: *s.Game, Player: *s.Player, Screen: s.Screen, Hole: s.Hole}, true
}

// Payload is what the UI renders.
func (s State) Payload() StatePayload {
	totals := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		totals[p.ID] = s.PlayerTotal(p.ID)
	}
	lb := s.Leaderboard()
	if lb == nil {
		lb = []Standing{}
	}
	return StatePayload{State: s, Leaderboard: lb, Totals: totals}
}
