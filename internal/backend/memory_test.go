package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_InsertSelect(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	g, err := m.InsertRow(ctx, TableGames, Row{"code": "AB12CD", "holes": 18})
	require.NoError(t, err)
	require.NotEmpty(t, g["id"])

	// caller copy is detached from the stored row
	g["code"] = "XXXXXX"

	for _, name := range []string{"Alice", "Bob"} {
		_, err := m.InsertRow(ctx, TablePlayers, Row{"game_id": g["id"], "name": name})
		require.NoError(t, err)
	}
	_, err = m.InsertRow(ctx, TablePlayers, Row{"game_id": "other", "name": "Carol"})
	require.NoError(t, err)

	rows, err := m.SelectRows(ctx, TablePlayers, Filter{"game_id": g["id"]})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0]["name"])
	assert.Equal(t, "Bob", rows[1]["name"])

	one, err := m.SelectOne(ctx, TableGames, Filter{"code": "AB12CD"})
	require.NoError(t, err)
	assert.Equal(t, g["id"], one["id"])
}

func TestMemory_SelectOneErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SelectOne(ctx, TableGames, Filter{"code": "NOPE00"})
	require.ErrorIs(t, err, ErrNotFound)

	for i := 0; i < 2; i++ {
		_, err := m.InsertRow(ctx, TablePlayers, Row{"game_id": "g", "name": "x"})
		require.NoError(t, err)
	}
	_, err = m.SelectOne(ctx, TablePlayers, Filter{"game_id": "g"})
	require.ErrorIs(t, err, ErrMultipleRows)

	_, err = m.SelectRows(ctx, "holes", nil)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestMemory_UniqueCode(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.InsertRow(ctx, TableGames, Row{"code": "AB12CD"})
	require.NoError(t, err)
	_, err = m.InsertRow(ctx, TableGames, Row{"code": "AB12CD"})
	require.ErrorIs(t, err, ErrConflict)

	rows, err := m.SelectRows(ctx, TableGames, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMemory_Upsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var ops []string
	sub, err := m.Subscribe(ctx, TableScores, Filter{"game_id": "g"}, func(c Change) {
		ops = append(ops, c.Op)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	key := Row{"game_id": "g", "player_id": "p", "hole": 1}
	require.NoError(t, m.UpsertRow(ctx, TableScores, key, Row{"strokes": 4}))
	require.NoError(t, m.UpsertRow(ctx, TableScores, key, Row{"strokes": 5}))

	rows, err := m.SelectRows(ctx, TableScores, Filter{"game_id": "g"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0]["strokes"])
	assert.NotContains(t, rows[0], "id")
	assert.Equal(t, []string{OpInsert, OpUpdate}, ops)
}

func TestMemory_Subscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got []Change
	sub, err := m.Subscribe(ctx, TablePlayers, Filter{"game_id": "g1"}, func(c Change) {
		got = append(got, c)
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.Subscribers())

	_, err = m.InsertRow(ctx, TablePlayers, Row{"game_id": "g1", "name": "Alice"})
	require.NoError(t, err)
	_, err = m.InsertRow(ctx, TablePlayers, Row{"game_id": "g2", "name": "Bob"})
	require.NoError(t, err)
	_, err = m.InsertRow(ctx, TableGames, Row{"code": "AB12CD", "game_id": "g1"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, TablePlayers, got[0].Table)
	assert.Equal(t, OpInsert, got[0].Op)
	assert.Equal(t, "Alice", got[0].Record["name"])

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Zero(t, m.Subscribers())

	_, err = m.InsertRow(ctx, TablePlayers, Row{"game_id": "g1", "name": "Carol"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMemory_UnsubscribeFromCallback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	calls := 0
	var sub Subscription
	sub, err := m.Subscribe(ctx, TablePlayers, nil, func(Change) {
		calls++
		sub.Unsubscribe()
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := m.InsertRow(ctx, TablePlayers, Row{"name": "x"})
		require.NoError(t, err)
	}
	require.Equal(t, 1, calls)
}

func TestFilter_Match(t *testing.T) {
	row := Row{"game_id": "g1", "hole": float64(3), "is_host": true}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", nil, true},
		{"equal", Filter{"game_id": "g1"}, true},
		{"json number vs int", Filter{"hole": 3}, true},
		{"all columns", Filter{"game_id": "g1", "is_host": true}, true},
		{"different", Filter{"game_id": "g2"}, false},
		{"missing column", Filter{"player_id": "p"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Match(row))
		})
	}
}

func TestDecodeRows(t *testing.T) {
	type score struct {
		PlayerID string `json:"player_id"`
		Hole     int    `json:"hole"`
		Strokes  int    `json:"strokes"`
	}

	got, err := DecodeRows[score]([]Row{
		{"player_id": "p1", "hole": 1, "strokes": 4, "game_id": "g"},
		{"player_id": "p2", "hole": float64(2), "strokes": float64(5)},
	})
	require.NoError(t, err)
	require.Equal(t, []score{{"p1", 1, 4}, {"p2", 2, 5}}, got)

	_, err = DecodeRows[score]([]Row{{"hole": "first"}})
	require.Error(t, err)

	empty, err := DecodeRows[score](nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}
