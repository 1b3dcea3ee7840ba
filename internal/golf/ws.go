package golf

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // the UI is served locally
}

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// Broadcast pushes st to every connected UI. Slow clients miss updates; the
// next push carries the full state anyway.
func (s *Server) Broadcast(st State) {
	msg, err := json.Marshal(Envelope{Type: "state", Payload: mustJSON(st.Payload())})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for cc := range s.conns {
		select {
		case cc.send <- msg:
		default:
		}
	}
}

func (s *Server) addConn(cc *ClientConn) {
	s.mu.Lock()
	s.conns[cc] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeConn(cc *ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, cc)
	cc.Close()
}

// handleWS streams state to the UI and accepts the scoring-screen commands
// as envelopes: refresh, score, hole.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	cc := &ClientConn{
		ws:   ws,
		send: make(chan []byte, 64),
	}

	// writer loop
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-cc.send:
				if !ok {
					return
				}
				_ = ws.WriteMessage(websocket.TextMessage, msg)
			case <-ticker.C:
				_ = ws.WriteMessage(websocket.PingMessage, []byte{})
			}
		}
	}()

	// register before reading the initial state
	s.addConn(cc)
	cc.send <- mustJSON(Envelope{Type: "state", Payload: mustJSON(s.syncer.State().Payload())})

	// reader loop
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(cc, "bad_json", "invalid json")
			continue
		}

		switch env.Type {
		case "refresh":
			err = s.syncer.Refresh(r.Context())

		case "score":
			var p ScorePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				s.sendError(cc, "bad_input", "invalid payload")
				continue
			}
			err = s.applyScore(r.Context(), p)

		case "hole":
			var p HolePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				s.sendError(cc, "bad_input", "invalid payload")
				continue
			}
			err = s.applyHole(p)

		default:
			s.sendError(cc, "unknown_type", "unknown message type")
			continue
		}

		if err != nil {
			_, code := errorStatus(err)
			s.sendError(cc, code, err.Error())
		}
	}

	s.removeConn(cc)
}

func (s *Server) sendError(cc *ClientConn, code, message string) {
	msg := mustJSON(Envelope{Type: "error", Payload: mustJSON(ErrorPayload{Code: code, Message: message})})

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[cc]; !ok {
		return
	}
	select {
	case cc.send <- msg:
	default:
	}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
