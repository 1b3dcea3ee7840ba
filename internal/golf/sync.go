package golf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"example.com/golf-scorecard/internal/backend"
)

type Config struct {
	Holes        int // hole count of created games, DefaultHoles if 0
	CodeAttempts int // inserts tried when a generated code collides, 1 if 0
}

// Synchronizer owns the local mirror of the active game. It writes through the
// backend, applies score edits optimistically and rebuilds everything from the
// backend whenever the change feed reports players or scores changes.
//
// A full refresh wins over optimistic edits: there is no version token, so the
// last write to reach the backend decides the value.
type Synchronizer struct {
	mu    sync.Mutex
	st    State
	token int64 // bumped whenever the active game changes
	busy  bool
	subs  []backend.Subscription

	refreshMu sync.Mutex

	be        backend.Backend
	cfg       Config
	log       *slog.Logger
	newCode   func() string
	changes   chan struct{}
	observers []func(State)
}

func NewSynchronizer(cfg Config, be backend.Backend, log *slog.Logger) *Synchronizer {
	if cfg.Holes <= 0 {
		cfg.Holes = DefaultHoles
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{
		st:      initialState(),
		be:      be,
		cfg:     cfg,
		log:     log,
		newCode: GenerateGameCode,
		changes: make(chan struct{}, 1),
	}
}

// OnChange registers fn to run after every committed state change. fn runs
// with the synchronizer locked and must not call back into it.
func (s *Synchronizer) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns a copy of the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

// Run consumes change-feed notifications and refreshes the mirror for each
// batch of them until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changes:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNoGame) {
				s.log.Error("refresh after change failed", "err", err)
			}
		}
	}
}

func (s *Synchronizer) CreateGame(ctx context.Context, hostName string) (Game, error) {
	name := strings.TrimSpace(hostName)
	if name == "" {
		return Game{}, ErrNameRequired
	}

	tok, err := s.begin(ActionCreate)
	if err != nil {
		return Game{}, err
	}
	defer s.end()

	game, err := s.insertGame(ctx, name)
	if err != nil {
		return Game{}, fmt.Errorf("create game: %w", err)
	}

	row, err := s.be.InsertRow(ctx, backend.TablePlayers, backend.Row{
		"game_id": game.ID,
		"name":    name,
		"is_host": true,
	})
	if err != nil {
		return Game{}, fmt.Errorf("add host player: %w", err)
	}
	var host Player
	if err := backend.DecodeRow(row, &host); err != nil {
		return Game{}, fmt.Errorf("decode player: %w", err)
	}

	if err := s.enterGame(ctx, tok, game, host, []Player{host}); err != nil {
		return Game{}, err
	}
	s.log.Info("game created", "game_id", game.ID, "code", game.Code)
	return game, nil
}

func (s *Synchronizer) insertGame(ctx context.Context, hostName string) (Game, error) {
	for attempt := 1; ; attempt++ {
		code := s.newCode()
		row, err := s.be.InsertRow(ctx, backend.TableGames, backend.Row{
			"code":      code,
			"host_name": hostName,
			"holes":     s.cfg.Holes,
			"status":    StatusActive,
		})
		if err == nil {
			var g Game
			if err := backend.DecodeRow(row, &g); err != nil {
				return Game{}, fmt.Errorf("decode game: %w", err)
			}
			return g, nil
		}
		if !errors.Is(err, backend.ErrConflict) || attempt >= s.cfg.CodeAttempts {
			return Game{}, err
		}
		s.log.Warn("game code collision, retrying", "code", code, "attempt", attempt)
	}
}

func (s *Synchronizer) JoinGame(ctx context.Context, code, playerName string) (Game, error) {
	code = NormalizeCode(code)
	name := strings.TrimSpace(playerName)
	if code == "" {
		return Game{}, ErrCodeRequired
	}
	if name == "" {
		return Game{}, ErrNameRequired
	}

	tok, err := s.begin(ActionJoin)
	if err != nil {
		return Game{}, err
	}
	defer s.end()

	row, err := s.be.SelectOne(ctx, backend.TableGames, backend.Filter{"code": code})
	if errors.Is(err, backend.ErrNotFound) {
		return Game{}, ErrGameNotFound
	}
	if err != nil {
		return Game{}, fmt.Errorf("find game: %w", err)
	}
	var game Game
	if err := backend.DecodeRow(row, &game); err != nil {
		return Game{}, fmt.Errorf("decode game: %w", err)
	}
	if game.Status != StatusActive {
		return Game{}, ErrGameNotFound
	}

	row, err = s.be.InsertRow(ctx, backend.TablePlayers, backend.Row{
		"game_id": game.ID,
		"name":    name,
		"is_host": false,
	})
	if err != nil {
		return Game{}, fmt.Errorf("add player: %w", err)
	}
	var me Player
	if err := backend.DecodeRow(row, &me); err != nil {
		return Game{}, fmt.Errorf("decode player: %w", err)
	}

	players, err := s.fetchPlayers(ctx, game.ID)
	if err != nil {
		return Game{}, err
	}

	if err := s.enterGame(ctx, tok, game, me, players); err != nil {
		return Game{}, err
	}
	s.log.Info("game joined", "game_id", game.ID, "code", game.Code, "players", len(players))
	return game, nil
}

// enterGame commits a created or joined game and subscribes to its changes.
func (s *Synchronizer) enterGame(ctx context.Context, tok int64, game Game, me Player, players []Player) error {
	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.token++
	s.unsubscribeLocked()
	s.st = State{
		Screen:  ScreenLobby,
		Game:    &game,
		Player:  &me,
		Players: players,
		Scores:  Scores{},
		Hole:    1,
		Loading: s.st.Loading,
	}
	tok = s.token
	s.notifyLocked()
	s.mu.Unlock()

	s.subscribe(ctx, game.ID, tok)
	return nil
}

// Resume restores a persisted session and re-fetches its data.
func (s *Synchronizer) Resume(ctx context.Context, snap Snapshot) error {
	game, me := snap.Game, snap.Player
	if game.Holes <= 0 {
		game.Holes = s.cfg.Holes
	}

	s.mu.Lock()
	s.token++
	s.unsubscribeLocked()
	s.st = State{
		Screen: snap.Screen,
		Game:   &game,
		Player: &me,
		Scores: Scores{},
		Hole:   clampHole(snap.Hole, game.Holes),
	}
	tok := s.token
	s.notifyLocked()
	s.mu.Unlock()

	s.subscribe(ctx, game.ID, tok)
	s.log.Info("session resumed", "game_id", game.ID, "screen", snap.Screen)

	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

// StartGame resets the mirror to zeros for every known player. Nothing is
// written to the backend until the first score edit.
func (s *Synchronizer) StartGame() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.Game == nil {
		return ErrNoGame
	}
	if len(s.st.Players) < 1 {
		return ErrNoPlayers
	}
	next, err := Navigate(s.st.Screen, ActionStart)
	if err != nil {
		return err
	}

	holes := s.st.Holes()
	mirror := make(Scores, len(s.st.Players))
	for _, p := range s.st.Players {
		mirror[p.ID] = make([]int, holes)
	}
	s.st.Scores = mirror
	s.st.Screen = next
	s.notifyLocked()
	return nil
}

// UpdateScore stores value (clamped at zero) for the player's hole. The mirror
// changes before the backend write; a failed write triggers a refresh so the
// mirror converges to what the backend holds.
func (s *Synchronizer) UpdateScore(ctx context.Context, playerID string, hole, value int) error {
	strokes := max(0, value)

	s.mu.Lock()
	if s.st.Game == nil {
		s.mu.Unlock()
		return ErrNoGame
	}
	holes := s.st.Holes()
	if hole < 1 || hole > holes {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d not in 1..%d", ErrHoleOutOfRange, hole, holes)
	}
	if !s.hasPlayerLocked(playerID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	row := append([]int(nil), s.st.Scores[playerID]...)
	if len(row) != holes {
		row = resize(row, holes)
	}
	row[hole-1] = strokes
	s.st.Scores[playerID] = row
	gameID := s.st.Game.ID
	s.notifyLocked()
	s.mu.Unlock()

	err := s.be.UpsertRow(ctx, backend.TableScores,
		backend.Row{"game_id": gameID, "player_id": playerID, "hole": hole},
		backend.Row{"strokes": strokes},
	)
	if err != nil {
		s.log.Error("score upsert failed, reconciling", "game_id", gameID, "player_id", playerID, "hole", hole, "err", err)
		if rerr := s.Refresh(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Error("reconcile refresh failed", "err", rerr)
		}
		return fmt.Errorf("save score: %w", err)
	}
	return nil
}

// AdjustScore adds delta to the player's current strokes on hole.
func (s *Synchronizer) AdjustScore(ctx context.Context, playerID string, hole, delta int) error {
	s.mu.Lock()
	current := 0
	if row := s.st.Scores[playerID]; hole >= 1 && hole <= len(row) {
		current = row[hole-1]
	}
	s.mu.Unlock()

	return s.UpdateScore(ctx, playerID, hole, current+delta)
}

// Refresh replaces players and the mirror with what the backend holds for the
// active game. Refreshes are serialized; a result for a game the user has
// left in the meantime is dropped.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	if s.st.Game == nil {
		s.mu.Unlock()
		return ErrNoGame
	}
	gameID := s.st.Game.ID
	holes := s.st.Holes()
	tok := s.token
	s.mu.Unlock()

	players, err := s.fetchPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	rows, err := s.be.SelectRows(ctx, backend.TableScores, backend.Filter{"game_id": gameID})
	if err != nil {
		return fmt.Errorf("fetch scores: %w", err)
	}
	entries, err := backend.DecodeRows[ScoreEntry](rows)
	if err != nil {
		return fmt.Errorf("decode scores: %w", err)
	}
	mirror := buildMirror(players, entries, holes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != tok {
		s.log.Debug("discarding refresh for inactive game", "game_id", gameID)
		return nil
	}
	s.st.Players = players
	s.st.Scores = mirror
	s.notifyLocked()
	return nil
}

// LeaveGame drops the session and returns to the home screen.
func (s *Synchronizer) LeaveGame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token++
	s.unsubscribeLocked()
	s.st = initialState()
	s.st.Loading = s.busy
	s.notifyLocked()
}

func (s *Synchronizer) SetHole(hole int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.Game == nil {
		return ErrNoGame
	}
	if holes := s.st.Holes(); hole < 1 || hole > holes {
		return fmt.Errorf("%w: %d not in 1..%d", ErrHoleOutOfRange, hole, holes)
	}
	s.st.Hole = hole
	s.notifyLocked()
	return nil
}

// NextHole and PrevHole stop at the first and last hole.
func (s *Synchronizer) NextHole() error { return s.stepHole(1) }

func (s *Synchronizer) PrevHole() error { return s.stepHole(-1) }

func (s *Synchronizer) stepHole(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.Game == nil {
		return ErrNoGame
	}
	next := clampHole(s.st.Hole+step, s.st.Holes())
	if next != s.st.Hole {
		s.st.Hole = next
		s.notifyLocked()
	}
	return nil
}

func (s *Synchronizer) ShowLeaderboard() error { return s.navigate(ActionShowLeaderboard) }

func (s *Synchronizer) BackToScoring() error { return s.navigate(ActionBackToScoring) }

func (s *Synchronizer) navigate(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Navigate(s.st.Screen, a)
	if err != nil {
		return err
	}
	s.st.Screen = next
	s.notifyLocked()
	return nil
}

// begin is the re-entrancy guard for create/join.
func (s *Synchronizer) begin(a Action) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return 0, ErrBusy
	}
	if _, err := Navigate(s.st.Screen, a); err != nil {
		return 0, err
	}
	s.busy = true
	s.st.Loading = true
	s.notifyLocked()
	return s.token, nil
}

func (s *Synchronizer) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	s.st.Loading = false
	s.notifyLocked()
}

func (s *Synchronizer) fetchPlayers(ctx context.Context, gameID string) ([]Player, error) {
	rows, err := s.be.SelectRows(ctx, backend.TablePlayers, backend.Filter{"game_id": gameID})
	if err != nil {
		return nil, fmt.Errorf("fetch players: %w", err)
	}
	players, err := backend.DecodeRows[Player](rows)
	if err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	return players, nil
}

func (s *Synchronizer) subscribe(ctx context.Context, gameID string, tok int64) {
	onChange := func(backend.Change) {
		s.mu.Lock()
		stale := s.token != tok
		s.mu.Unlock()
		if stale {
			return
		}
		select {
		case s.changes <- struct{}{}:
		default: // a refresh is already pending
		}
	}

	filter := backend.Filter{"game_id": gameID}
	var subs []backend.Subscription
	for _, table := range []string{backend.TablePlayers, backend.TableScores} {
		sub, err := s.be.Subscribe(ctx, table, filter, onChange)
		if err != nil {
			s.log.Error("subscribe failed", "table", table, "game_id", gameID, "err", err)
			continue
		}
		subs = append(subs, sub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != tok {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		return
	}
	s.subs = append(s.subs, subs...)
}

func (s *Synchronizer) unsubscribeLocked() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Synchronizer) hasPlayerLocked(id string) bool {
	for _, p := range s.st.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Synchronizer) notifyLocked() {
	if len(s.observers) == 0 {
		return
	}
	st := s.st.clone()
	for _, fn := range s.observers {
		fn(st)
	}
}

// buildMirror lays score rows out per player. Rows for unknown players or
// holes outside 1..holes are ignored.
func buildMirror(players []Player, entries []ScoreEntry, holes int) Scores {
	mirror := make(Scores, len(players))
	for _, p := range players {
		mirror[p.ID] = make([]int, holes)
	}
	for _, e := range entries {
		row, ok := mirror[e.PlayerID]
		if !ok || e.Hole < 1 || e.Hole > holes {
			continue
		}
		row[e.Hole-1] = e.Strokes
	}
	return mirror
}

func resize(row []int, n int) []int {
	out := make([]int, n)
	copy(out, row)
	return out
}

func clampHole(hole, holes int) int {
	return min(max(hole, 1), holes)
}
