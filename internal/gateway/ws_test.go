package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stagehand-ai/stagehand/internal/events"
	"github.com/stagehand-ai/stagehand/internal/llm"
)

func dialWS(t *testing.T, fx *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestWebSocketJoinAndStream(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})
	conn := dialWS(t, fx)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("join:session s1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readWS(t, conn)
	if ack["event"] != "joined" || ack["session_id"] != "s1" {
		t.Fatalf("ack = %v", ack)
	}

	// The subscription lands before the ack is sent, so publishing after
	// the ack is received cannot race the join.
	fx.bus.Publish("s1", events.ToolExecuted, map[string]any{"tool": "echo"})

	ev := readWS(t, conn)
	if ev["event"] != events.ToolExecuted || ev["session_id"] != "s1" {
		t.Fatalf("event = %v", ev)
	}

	// Events for other sessions are not forwarded.
	fx.bus.Publish("s2", events.AgentDone, nil)
	fx.bus.Publish("s1", events.AgentDone, nil)
	ev = readWS(t, conn)
	if ev["event"] != events.AgentDone || ev["session_id"] != "s1" {
		t.Fatalf("event = %v", ev)
	}
}

func TestWebSocketSwitchSession(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})
	conn := dialWS(t, fx)

	conn.WriteMessage(websocket.TextMessage, []byte("join:session a"))
	readWS(t, conn)
	conn.WriteMessage(websocket.TextMessage, []byte("join:session b"))
	readWS(t, conn)

	if n := fx.bus.SubscriberCount("a"); n != 0 {
		t.Fatalf("old session still has %d subscribers", n)
	}
	if n := fx.bus.SubscriberCount("b"); n != 1 {
		t.Fatalf("new session has %d subscribers", n)
	}

	fx.bus.Publish("b", events.AgentStart, nil)
	ev := readWS(t, conn)
	if ev["session_id"] != "b" {
		t.Fatalf("event = %v", ev)
	}
}

func TestWebSocketUnknownCommand(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})
	conn := dialWS(t, fx)

	conn.WriteMessage(websocket.TextMessage, []byte("do something"))
	msg := readWS(t, conn)
	if msg["event"] != "error" {
		t.Fatalf("msg = %v", msg)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("join:session "))
	msg = readWS(t, conn)
	if msg["event"] != "error" {
		t.Fatalf("msg = %v", msg)
	}
}

func TestWebSocketUnsubscribesOnClose(t *testing.T) {
	fx := newFixture(t, &scriptedLLM{responses: []*llm.ChatResponse{textResponse("hi")}})
	conn := dialWS(t, fx)

	conn.WriteMessage(websocket.TextMessage, []byte("join:session gone"))
	readWS(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.bus.SubscriberCount("gone") == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber not removed after close")
}
