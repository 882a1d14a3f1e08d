package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/delegent/internal/agent"
)

const maxFrameSize = 256 << 10

// Frame types sent to WebSocket clients.
const (
	FrameStep   = "step"
	FrameAnswer = "answer"
	FrameError  = "error"
)

// QueryFrame is a client request over the WebSocket.
type QueryFrame struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// EventFrame is a server message over the WebSocket. Step frames carry
// the agent's progress before the answer or error frame for the same ID.
type EventFrame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Step   *agent.Step `json:"step,omitempty"`
	Answer string      `json:"answer,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// wsConn serializes writes to one WebSocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(f EventFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)
	c := &wsConn{conn: conn}
	log := s.log.With("requestId", RequestID(r.Context()))
	log.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")

	// Cancelled when the client goes away or the server shuts down.
	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		conn.Close()
		log.Debug().Msg("websocket disconnected")
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var f QueryFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.send(EventFrame{Type: FrameError, Error: "invalid frame: " + err.Error()})
			continue
		}
		f.Query = strings.TrimSpace(f.Query)
		if f.Query == "" {
			c.send(EventFrame{Type: FrameError, ID: f.ID, Error: "query is required"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveFrame(ctx, c, f)
		}()
	}
}

func (s *Server) serveFrame(ctx context.Context, c *wsConn, f QueryFrame) {
	ctx = agent.WithObserver(ctx, func(step agent.Step) {
		c.send(EventFrame{Type: FrameStep, ID: f.ID, Step: &step})
	})

	res, err := s.answer(ctx, f.Query)
	if err != nil {
		s.log.Warn().Str("id", f.ID).Err(err).Msg("websocket query failed")
		c.send(EventFrame{Type: FrameError, ID: f.ID, Error: err.Error()})
		return
	}
	c.send(EventFrame{Type: FrameAnswer, ID: f.ID, Answer: res.Answer})
}
