package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"example.com/golf-scorecard/internal/golf"
	"github.com/stretchr/testify/require"
)

func testSnapshot() golf.Snapshot {
	return golf.Snapshot{
		Game:   golf.Game{ID: "g1", Code: "AB12CD", HostName: "Alice", Holes: 18, Status: golf.StatusActive},
		Player: golf.Player{ID: "p1", GameID: "g1", Name: "Alice", IsHost: true},
		Screen: golf.ScreenScoring,
		Hole:   7,
	}
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	st := NewStore(NewMemoryKV())

	require.NoError(t, st.Save(ctx, testSnapshot()))

	got, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testSnapshot(), got)
}

func TestStore_LoadEmpty(t *testing.T) {
	_, ok, err := NewStore(NewMemoryKV()).Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_ClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := NewStore(kv)

	require.NoError(t, st.Save(ctx, testSnapshot()))
	require.Equal(t, 4, kv.Len())

	require.NoError(t, st.Clear(ctx))
	require.Zero(t, kv.Len())

	_, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// a later save still works
	require.NoError(t, st.Save(ctx, testSnapshot()))
	_, ok, err = st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStore_SaveWithoutIDsClears(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := NewStore(kv)

	require.NoError(t, st.Save(ctx, testSnapshot()))
	require.NoError(t, st.Save(ctx, golf.Snapshot{Screen: golf.ScreenHome}))
	require.Zero(t, kv.Len())
}

func TestStore_Defaults(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := NewStore(kv)

	require.NoError(t, st.Save(ctx, testSnapshot()))
	require.NoError(t, kv.Remove(ctx, KeyView))
	require.NoError(t, kv.Remove(ctx, KeyHole))

	got, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, golf.ScreenLobby, got.Screen)
	require.Equal(t, 1, got.Hole)
}

func TestStore_PartialSessionIsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := NewStore(kv)

	require.NoError(t, st.Save(ctx, testSnapshot()))
	require.NoError(t, kv.Remove(ctx, KeyPlayer))

	_, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_MalformedIsClearedAndAbsent(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"game json", KeyGame, "{not json"},
		{"player json", KeyPlayer, "[]"},
		{"missing id", KeyGame, `{"code":"AB12CD"}`},
		{"screen", KeyView, "putting-green"},
		{"hole", KeyHole, "x"},
		{"zero hole", KeyHole, "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			kv := NewMemoryKV()
			st := NewStore(kv)

			require.NoError(t, st.Save(ctx, testSnapshot()))
			require.NoError(t, kv.Set(ctx, tc.key, tc.value))

			_, ok, err := st.Load(ctx)
			require.Error(t, err)
			require.False(t, ok)
			require.Zero(t, kv.Len())
		})
	}
}

type failingKV struct {
	*MemoryKV
	err error
}

func (f failingKV) Get(context.Context, string) (string, error) { return "", f.err }

func TestStore_ReadErrorIsAbsent(t *testing.T) {
	boom := errors.New("disk gone")
	st := NewStore(failingKV{MemoryKV: NewMemoryKV(), err: boom})

	_, ok, err := st.Load(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, ok)
}

func TestStore_Observer(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	st := NewStore(kv)
	hook := st.Observer(ctx, nil)

	snap := testSnapshot()
	hook(golf.State{
		Screen: snap.Screen,
		Game:   &snap.Game,
		Player: &snap.Player,
		Hole:   snap.Hole,
	})

	got, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, got)

	hook(golf.State{Screen: golf.ScreenHome, Hole: 1})
	require.Zero(t, kv.Len())
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	kv, err := OpenSQLiteKV(ctx, path)
	require.NoError(t, err)

	_, err = kv.Get(ctx, KeyGame)
	require.ErrorIs(t, err, ErrKeyNotFound)

	st := NewStore(kv)
	require.NoError(t, st.Save(ctx, testSnapshot()))
	require.NoError(t, kv.Set(ctx, KeyHole, "9"))
	require.NoError(t, kv.Close())

	// reopened file keeps the session
	kv, err = OpenSQLiteKV(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	got, ok, err := NewStore(kv).Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9, got.Hole)
	require.Equal(t, "AB12CD", got.Game.Code)

	require.NoError(t, NewStore(kv).Clear(ctx))
	_, err = kv.Get(ctx, KeyPlayer)
	require.ErrorIs(t, err, ErrKeyNotFound)
}
