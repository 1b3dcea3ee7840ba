package golf

import "fmt"

type Screen string

const (
	ScreenHome        Screen = "home"
	ScreenLobby       Screen = "lobby"
	ScreenScoring     Screen = "scoring"
	ScreenLeaderboard Screen = "leaderboard"
)

type Action string

const (
	ActionCreate          Action = "create"
	ActionJoin            Action = "join"
	ActionStart           Action = "start"
	ActionShowLeaderboard Action = "show_leaderboard"
	ActionBackToScoring   Action = "back_to_scoring"
	ActionReset           Action = "reset"
)

// ParseScreen validates a persisted screen name.
func ParseScreen(s string) (Screen, bool) {
	switch Screen(s) {
	case ScreenHome, ScreenLobby, ScreenScoring, ScreenLeaderboard:
		return Screen(s), true
	}
	return "", false
}

// Navigate returns the screen reached by applying a to from.
//
//	home -> lobby -> scoring <-> leaderboard, and reset from anywhere to home.
func Navigate(from Screen, a Action) (Screen, error) {
	if a == ActionReset {
		return ScreenHome, nil
	}

	switch {
	case from == ScreenHome && (a == ActionCreate || a == ActionJoin):
		return ScreenLobby, nil
	case from == ScreenLobby && a == ActionStart:
		return ScreenScoring, nil
	case from == ScreenScoring && a == ActionShowLeaderboard:
		return ScreenLeaderboard, nil
	case from == ScreenLeaderboard && a == ActionBackToScoring:
		return ScreenScoring, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrBadTransition, a, from)
}
