package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/domain"
)

func testStoredMessage(id string) domain.Message {
	return domain.Message{
		Role:      domain.RoleAssistant,
		Content:   "content-" + id,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func dialWS(t *testing.T, srv *httptest.Server, conversationID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?conversationId=" + conversationID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event wsEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return event
}

func TestWebSocket_RequiresConversationID(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *Config) { cfg.WebsocketEnabled = true })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without conversationId, got %d", resp.StatusCode)
	}
}

func TestWebSocket_PushesStoredMessages(t *testing.T) {
	s, mbox := newTestServer(t, func(cfg *Config) { cfg.WebsocketEnabled = true })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "c1")
	defer conn.Close()

	if event := readEvent(t, conn); event.Type != "status" || event.Content != "connected" {
		t.Fatalf("expected connected status event, got %+v", event)
	}

	body := `{"type":"text","conversationId":"c1","payload":{"text":"pushed"}}`
	resp, err := http.Post(srv.URL+"/api/chat/webhook", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	event := readEvent(t, conn)
	if event.Type != "message" {
		t.Fatalf("expected message event, got %+v", event)
	}
	if event.Message == nil || event.Message.Content != "pushed" {
		t.Errorf("pushed message mismatch: %+v", event.Message)
	}

	// Push is best-effort delivery only; the mailbox still holds the message
	// for the next poll.
	if mbox.Len("c1") != 1 {
		t.Errorf("push must not drain the mailbox: pending=%d", mbox.Len("c1"))
	}
}

func TestWebSocket_IgnoresOtherConversations(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *Config) { cfg.WebsocketEnabled = true })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "c1")
	defer conn.Close()
	readEvent(t, conn) // connected

	body := `{"type":"text","conversationId":"other","payload":{"text":"not for c1"}}`
	resp, err := http.Post(srv.URL+"/api/chat/webhook", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client should not receive messages for other conversations")
	}
}

func TestWebSocket_NotRoutedWhenDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?conversationId=c1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 with websocket disabled, got %d", resp.StatusCode)
	}
}
