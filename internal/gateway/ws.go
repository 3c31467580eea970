package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagehand-ai/stagehand/internal/events"
)

const (
	wsTickInterval = 15 * time.Second
	wsPongWait     = 45 * time.Second
	wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is one live WebSocket subscriber. Event delivery goes through
// the buffered send channel so a slow socket never blocks the bus.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	sessionID   string
	unsubscribe func()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go client.writeLoop()
	s.readLoop(client)
}

// readLoop consumes control messages until the peer goes away. The only
// client-to-server message is "join:session <id>", which switches the
// connection's event subscription.
func (s *Server) readLoop(client *wsConn) {
	defer func() {
		client.leave()
		close(client.send)
	}()

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		msg := strings.TrimSpace(string(data))
		sessionID, ok := strings.CutPrefix(msg, "join:session ")
		if !ok {
			client.enqueue(wsMessage("error", "", "unknown command"))
			continue
		}
		sessionID = strings.TrimSpace(sessionID)
		if sessionID == "" {
			client.enqueue(wsMessage("error", "", "session id is required"))
			continue
		}

		s.join(client, sessionID)
		client.enqueue(wsMessage("joined", sessionID, ""))
	}
}

// join subscribes the connection to a session's events, dropping any
// previous subscription first.
func (s *Server) join(client *wsConn, sessionID string) {
	unsubscribe := s.bus.Subscribe(sessionID, func(ev events.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		client.enqueue(data)
	})

	client.mu.Lock()
	old := client.unsubscribe
	client.sessionID = sessionID
	client.unsubscribe = unsubscribe
	client.mu.Unlock()

	if old != nil {
		old()
	}
	s.logger.Info("websocket joined session", "session", sessionID)
}

func (c *wsConn) leave() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// enqueue drops the frame when the buffer is full; progress events are
// best-effort.
func (c *wsConn) enqueue(data []byte) {
	defer func() {
		// The send channel closes when the reader exits; a racing bus
		// handler may still try to enqueue.
		recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsTickInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wsMessage(event, sessionID, errMsg string) []byte {
	msg := map[string]any{"event": event}
	if sessionID != "" {
		msg["session_id"] = sessionID
	}
	if errMsg != "" {
		msg["error"] = errMsg
	}
	data, _ := json.Marshal(msg)
	return data
}
