// Package mailbox buffers undelivered bot messages per conversation until a
// polling client picks them up. It is the only shared mutable state in the
// relay: the webhook handler produces into it and the poll handler consumes
// from it, each at its own cadence.
package mailbox

import (
	"log/slog"
	"sync"

	"chatrelay/internal/domain"
	"chatrelay/internal/metrics"
)

// DefaultCapacity bounds the number of pending messages kept per conversation.
const DefaultCapacity = 100

// Mailbox is an in-memory keyed buffer of pending messages. A key is created
// by the first Store for a conversation and removed by Drain. State lives for
// the process lifetime only; restarting loses all undelivered messages.
type Mailbox struct {
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string][]domain.Message
}

// New creates a mailbox that keeps at most capacity messages per conversation.
func New(capacity int, logger *slog.Logger) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox{
		capacity: capacity,
		logger:   logger,
		pending:  make(map[string][]domain.Message),
	}
}

// Store appends msg to the conversation's queue. When the queue exceeds
// capacity the oldest entries are evicted first. Callers must validate the
// conversation id before storing; an empty key is a caller contract violation.
func (m *Mailbox) Store(conversationID string, msg domain.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := append(m.pending[conversationID], msg)
	if over := len(q) - m.capacity; over > 0 {
		// Copy instead of re-slicing so evicted entries don't pin the backing array.
		q = append(make([]domain.Message, 0, m.capacity), q[over:]...)
		metrics.MessagesEvicted.Add(int64(over))
		metrics.PendingMessages.Add(int64(-over))
		m.logger.Warn("mailbox capacity reached, evicting oldest",
			"conversation_id", conversationID,
			"evicted", over,
		)
	}
	m.pending[conversationID] = q
	metrics.PendingMessages.Inc()

	m.logger.Debug("message stored",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"pending", len(q),
	)
}

// Peek returns the pending messages for a conversation without mutating the
// mailbox. The returned slice is a copy; callers never alias internal storage.
func (m *Mailbox) Peek(conversationID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message{}, m.pending[conversationID]...)
}

// Drain returns the pending messages for a conversation and removes the key
// atomically. A subsequent Peek or Drain returns empty until new messages
// arrive. Every stored message is observed by exactly one Drain.
func (m *Mailbox) Drain(conversationID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.pending[conversationID]
	if !ok {
		return []domain.Message{}
	}
	delete(m.pending, conversationID)
	metrics.PendingMessages.Add(int64(-len(q)))
	metrics.MessagesDelivered.Add(int64(len(q)))

	m.logger.Debug("mailbox drained",
		"conversation_id", conversationID,
		"count", len(q),
	)
	return q
}

// Len returns the number of pending messages for a conversation.
func (m *Mailbox) Len(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[conversationID])
}

// Conversations returns the number of conversations with pending messages.
func (m *Mailbox) Conversations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
