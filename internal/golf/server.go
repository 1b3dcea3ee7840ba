package golf

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
)

// Server exposes the synchronizer to the local UI: JSON commands over HTTP and
// state pushes over WebSocket.
type Server struct {
	syncer *Synchronizer
	log    *slog.Logger

	mu    sync.Mutex
	conns map[*ClientConn]struct{}
}

func NewServer(s *Synchronizer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{
		syncer: s,
		log:    log,
		conns:  make(map[*ClientConn]struct{}),
	}
	s.OnChange(srv.Broadcast)
	return srv
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/game", s.handleCreateGame)
	mux.HandleFunc("/api/game/join", s.handleJoinGame)
	mux.HandleFunc("/api/game/start", s.post(func(r *http.Request) error { return s.syncer.StartGame() }))
	mux.HandleFunc("/api/score", s.handleScore)
	mux.HandleFunc("/api/hole", s.handleHole)
	mux.HandleFunc("/api/refresh", s.post(func(r *http.Request) error { return s.syncer.Refresh(r.Context()) }))
	mux.HandleFunc("/api/leaderboard", s.post(func(r *http.Request) error { return s.syncer.ShowLeaderboard() }))
	mux.HandleFunc("/api/scoring", s.post(func(r *http.Request) error { return s.syncer.BackToScoring() }))
	mux.HandleFunc("/api/leave", s.post(func(r *http.Request) error {
		s.syncer.LeaveGame()
		return nil
	}))
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.State().Payload())
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var p CreateGamePayload
	if !decodePost(w, r, &p) {
		return
	}
	if _, err := s.syncer.CreateGame(r.Context(), p.Name); err != nil {
		s.writeErr(w, "Failed to create game", err)
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.State().Payload())
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var p JoinGamePayload
	if !decodePost(w, r, &p) {
		return
	}
	if _, err := s.syncer.JoinGame(r.Context(), p.Code, p.Name); err != nil {
		s.writeErr(w, "Failed to join game", err)
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.State().Payload())
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var p ScorePayload
	if !decodePost(w, r, &p) {
		return
	}
	if err := s.applyScore(r.Context(), p); err != nil {
		s.writeErr(w, "Failed to update score", err)
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.State().Payload())
}

func (s *Server) handleHole(w http.ResponseWriter, r *http.Request) {
	var p HolePayload
	if !decodePost(w, r, &p) {
		return
	}
	if err := s.applyHole(p); err != nil {
		s.writeErr(w, "Failed to change hole", err)
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.State().Payload())
}

func (s *Server) applyScore(ctx context.Context, p ScorePayload) error {
	if p.Strokes != nil {
		return s.syncer.UpdateScore(ctx, p.PlayerID, p.Hole, *p.Strokes)
	}
	return s.syncer.AdjustScore(ctx, p.PlayerID, p.Hole, p.Delta)
}

func (s *Server) applyHole(p HolePayload) error {
	switch {
	case p.Hole != 0:
		return s.syncer.SetHole(p.Hole)
	case p.Step > 0:
		return s.syncer.NextHole()
	case p.Step < 0:
		return s.syncer.PrevHole()
	}
	return nil
}

// post wraps a body-less command.
func (s *Server) post(fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := fn(r); err != nil {
			s.writeErr(w, "Request failed", err)
			return
		}
		writeJSON(w, http.StatusOK, s.syncer.State().Payload())
	}
}

func (s *Server) writeErr(w http.ResponseWriter, prefix string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(prefix, "err", err)
	}
	writeJSON(w, status, ErrorPayload{Code: code, Message: prefix + ": " + err.Error()})
}

// errorStatus maps domain errors to an HTTP status and an error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrCodeRequired):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ErrHoleOutOfRange), errors.Is(err, ErrUnknownPlayer):
		return http.StatusBadRequest, "bad_input"
	case errors.Is(err, ErrGameNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, ErrNoGame), errors.Is(err, ErrNoPlayers),
		errors.Is(err, ErrBadTransition), errors.Is(err, ErrSuperseded):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusBadGateway, "backend"
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Code: "bad_json", Message: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
