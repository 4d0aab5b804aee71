package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vrpengine/internal/store"
)

// Run events over WebSocket, framed like graphql-transport-ws: the server
// sends "next" per event and "complete" after the terminal one.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunEventsWSHandler handles /v1/runs/{id}/events/ws
func (s *Server) RunEventsWSHandler(w http.ResponseWriter, r *http.Request, id string) {
	ch, done, err := s.subscribeRun(r, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Run not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if ch != nil {
			s.Broker.Unsubscribe(id, ch)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	next := func(evt SSEEvent) error {
		payload, _ := json.Marshal(evt)
		return write(wsMessage{Type: "next", ID: id, Payload: payload})
	}

	if done != nil {
		_ = next(*done)
		_ = write(wsMessage{Type: "complete", ID: id})
		return
	}

	// Read loop: answers pings and notices client close or "complete"
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(1 << 16)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			switch msg.Type {
			case "connection_init":
				_ = write(wsMessage{Type: "connection_ack"})
			case "ping":
				_ = write(wsMessage{Type: "pong"})
			case "complete":
				return
			}
		}
	}()

	defer s.Broker.Unsubscribe(id, ch)
	keepalive := time.NewTicker(20 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := next(evt); err != nil {
				return
			}
			if evt.terminal() {
				_ = write(wsMessage{Type: "complete", ID: id})
				return
			}
		case <-keepalive.C:
			if err := write(wsMessage{Type: "ping"}); err != nil {
				return
			}
		}
	}
}
