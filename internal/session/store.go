package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"example.com/golf-scorecard/internal/golf"
)

const (
	KeyGame   = "golf-current-game"
	KeyPlayer = "golf-current-player"
	KeyView   = "golf-current-view"
	KeyHole   = "golf-current-hole"
)

var keys = []string{KeyGame, KeyPlayer, KeyView, KeyHole}

// Store persists the session snapshot so a restart resumes mid-round.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Save writes the snapshot. A snapshot without game or player ids clears the
// session instead.
func (s *Store) Save(ctx context.Context, snap golf.Snapshot) error {
	if snap.Game.ID == "" || snap.Player.ID == "" {
		return s.Clear(ctx)
	}

	game, err := json.Marshal(snap.Game)
	if err != nil {
		return err
	}
	player, err := json.Marshal(snap.Player)
	if err != nil {
		return err
	}

	values := map[string]string{
		KeyGame:   string(game),
		KeyPlayer: string(player),
		KeyView:   string(snap.Screen),
		KeyHole:   strconv.Itoa(snap.Hole),
	}
	for _, k := range keys {
		if err := s.kv.Set(ctx, k, values[k]); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
}

// Load returns the persisted snapshot. ok is false when there is none. A
// snapshot that cannot be read is treated as absent: the keys are cleared and
// the cause is returned alongside ok=false.
func (s *Store) Load(ctx context.Context) (golf.Snapshot, bool, error) {
	snap, ok, err := s.load(ctx)
	if err != nil {
		if cerr := s.Clear(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return golf.Snapshot{}, false, err
	}
	return snap, ok, nil
}

func (s *Store) load(ctx context.Context) (golf.Snapshot, bool, error) {
	gameRaw, gok, err := s.get(ctx, KeyGame)
	if err != nil {
		return golf.Snapshot{}, false, err
	}
	playerRaw, pok, err := s.get(ctx, KeyPlayer)
	if err != nil {
		return golf.Snapshot{}, false, err
	}
	if !gok || !pok {
		return golf.Snapshot{}, false, nil
	}

	var snap golf.Snapshot
	if err := json.Unmarshal([]byte(gameRaw), &snap.Game); err != nil {
		return golf.Snapshot{}, false, fmt.Errorf("parse game: %w", err)
	}
	if err := json.Unmarshal([]byte(playerRaw), &snap.Player); err != nil {
		return golf.Snapshot{}, false, fmt.Errorf("parse player: %w", err)
	}
	if snap.Game.ID == "" || snap.Player.ID == "" {
		return golf.Snapshot{}, false, errors.New("session without game or player id")
	}

	view, vok, err := s.get(ctx, KeyView)
	if err != nil {
		return golf.Snapshot{}, false, err
	}
	snap.Screen = golf.ScreenLobby
	if vok {
		screen, ok := golf.ParseScreen(view)
		if !ok {
			return golf.Snapshot{}, false, fmt.Errorf("bad screen %q", view)
		}
		snap.Screen = screen
	}

	hole, hok, err := s.get(ctx, KeyHole)
	if err != nil {
		return golf.Snapshot{}, false, err
	}
	snap.Hole = 1
	if hok {
		n, err := strconv.Atoi(hole)
		if err != nil || n < 1 {
			return golf.Snapshot{}, false, fmt.Errorf("bad hole %q", hole)
		}
		snap.Hole = n
	}

	return snap, true, nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

// Clear removes every session key.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, k := range keys {
		if err := s.kv.Remove(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Observer returns a state hook that saves the session after every change and
// clears it once the state has no game. Install it only after Load so the
// initial empty state does not wipe the persisted session.
func (s *Store) Observer(ctx context.Context, log *slog.Logger) func(golf.State) {
	if log == nil {
		log = slog.Default()
	}
	return func(st golf.State) {
		snap, ok := st.Snapshot()
		var err error
		if ok {
			err = s.Save(ctx, snap)
		} else {
			err = s.Clear(ctx)
		}
		if err != nil {
			log.Error("persist session failed", "err", err)
		}
	}
}
