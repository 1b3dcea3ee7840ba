package golf

import "slices"

// PlayerTotal sums the player's row. Unplayed holes count as zero.
func PlayerTotal(scores Scores, playerID string) int {
	total := 0
	for _, v := range scores[playerID] {
		total += v
	}
	return total
}

// CurrentHole is the first hole without strokes, or holes+1 when every hole
// has a value. A player without a row is on hole 1.
func CurrentHole(row []int, holes int) int {
	if row == nil {
		return 1
	}
	for i, v := range row {
		if v == 0 {
			return i + 1
		}
	}
	return holes + 1
}

// Leaderboard ranks players by ascending total. Players with a zero total have
// not started and sort after everyone who has; among themselves they keep
// player order.
func Leaderboard(players []Player, scores Scores, holes int) []Standing {
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{
			Player:      p,
			Total:       PlayerTotal(scores, p.ID),
			CurrentHole: CurrentHole(scores[p.ID], holes),
		})
	}
	slices.SortStableFunc(out, compareStandings)
	return out
}

func compareStandings(a, b Standing) int {
	switch {
	case a.Total == 0 && b.Total == 0:
		return 0
	case a.Total == 0:
		return 1
	case b.Total == 0:
		return -1
	default:
		return a.Total - b.Total
	}
}
