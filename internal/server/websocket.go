package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay/internal/domain"
	"chatrelay/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (configure CORS for production)
	},
}

// wsHub pushes stored messages to connected browser clients in real time,
// alongside (not instead of) the poll endpoint. Delivery is best-effort and
// never removes messages from the mailbox.
type wsHub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// wsClient tracks a connected websocket client.
type wsClient struct {
	conn           *websocket.Conn
	conversationID string
	mu             sync.Mutex
}

// wsEvent is the JSON protocol pushed to clients.
type wsEvent struct {
	Type           string          `json:"type"` // "status" | "message"
	Content        string          `json:"content,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	Message        *domain.Message `json:"message,omitempty"`
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

func (h *wsHub) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "conversationId required"})
		return
	}

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	client := &wsClient{
		conn:           conn,
		conversationID: conversationID,
	}

	clientID := fmt.Sprintf("%s-%p", conversationID, conn)
	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()
	metrics.WSConnections.Inc()

	h.logger.Info("websocket client connected", "client_id", clientID, "conversation_id", conversationID)

	client.send(wsEvent{Type: "status", Content: "connected", ConversationID: conversationID})

	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
		metrics.WSConnections.Dec()
		conn.Close()
		h.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	// The push channel is one-way; the read loop only detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// push delivers msg to every client subscribed to its conversation.
func (h *wsHub) push(msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event := wsEvent{
		Type:           "message",
		ConversationID: msg.ConversationID,
		Message:        &msg,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	for _, client := range h.clients {
		if client.conversationID != msg.ConversationID {
			continue
		}
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			h.logger.Debug("websocket write failed", "err", err)
		}
	}
}

func (c *wsClient) send(event wsEvent) {
	data, _ := json.Marshal(event)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.conn.Close()
		delete(h.clients, id)
	}
}
