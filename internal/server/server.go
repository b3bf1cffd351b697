// Package server exposes the relay's HTTP surface: the bot-platform webhook,
// the browser poll endpoint, the optional websocket push channel, and the
// status/metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chatrelay/internal/botpress"
	"chatrelay/internal/domain"
	"chatrelay/internal/mailbox"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"
)

const (
	maxBodySize = 1 << 20 // 1MB

	internalErrorMessage = "internal server error"
)

// Config configures the relay HTTP server.
type Config struct {
	Host             string
	Port             int
	Version          string
	PollIntervalMs   int
	WebsocketEnabled bool
	MetricsEnabled   bool
	Logger           *slog.Logger
	Mailbox          *mailbox.Mailbox
	Forwarder        *relay.Forwarder // nil disables downstream forwarding
}

// Server handles the webhook and poll endpoints. The mailbox is the only
// shared state; handlers are otherwise stateless.
type Server struct {
	host           string
	port           int
	version        string
	pollIntervalMs int
	metricsEnabled bool
	logger         *slog.Logger
	mailbox        *mailbox.Mailbox
	forwarder      *relay.Forwarder
	hub            *wsHub
	server         *http.Server
	startTime      time.Time
}

// New creates a relay server.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 2000
	}

	s := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		version:        cfg.Version,
		pollIntervalMs: cfg.PollIntervalMs,
		metricsEnabled: cfg.MetricsEnabled,
		logger:         cfg.Logger,
		mailbox:        cfg.Mailbox,
		forwarder:      cfg.Forwarder,
		startTime:      time.Now(),
	}
	if cfg.WebsocketEnabled {
		s.hub = newWSHub(cfg.Logger)
	}
	return s
}

// Handler returns the full route table. Exposed separately from Start so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/chat/poll", s.handlePoll)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.handleUpgrade)
	}
	if s.metricsEnabled {
		mux.HandleFunc("GET /metrics", metrics.Collector.Handler())
	}
	return mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("relay server starting",
		"addr", "http://"+addr,
		"websocket", s.hub != nil,
		"relay", s.forwarder != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("relay server shutting down")
		if s.hub != nil {
			s.hub.closeAllClients()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("relay server: %w", err)
	}
}

// Stop force-closes the server. Start's graceful path is preferred.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// handleWebhook accepts a bot-platform callback, normalizes it, stores the
// result in the mailbox and hands it to the downstream forwarder. Validation
// failures short-circuit before any mailbox write.
func (s *Server) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.logger.Error("webhook body read failed", "err", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
		return
	}
	defer r.Body.Close()

	var payload botpress.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Error("webhook payload not decodable", "err", err, "body_len", len(body))
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
		return
	}

	msg, err := botpress.Normalize(payload)
	if err != nil {
		if errors.Is(err, domain.ErrMissingConversationID) {
			s.logger.Warn("webhook rejected: no conversation id resolved", "type", payload.Type)
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "MissingConversationId"})
			return
		}
		s.logger.Error("webhook normalization failed", "err", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
		return
	}

	s.mailbox.Store(msg.ConversationID, msg)
	metrics.MessagesReceived.Inc()

	s.logger.Info("bot message stored",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"type", payload.Type,
		"attachments", len(msg.Attachments),
	)

	if s.hub != nil {
		s.hub.push(msg)
	}

	writeJSON(rw, http.StatusOK, map[string]any{"success": true})

	// Detached: runs after the response, failures never reach this caller.
	if s.forwarder != nil {
		s.forwarder.Dispatch(msg)
	}
}

type pollResponse struct {
	Success        bool             `json:"success"`
	Messages       []domain.Message `json:"messages"`
	Count          int              `json:"count"`
	PollIntervalMs int              `json:"pollIntervalMs"`
}

// handlePoll returns pending messages for a conversation. With clear=true it
// drains the mailbox; otherwise it peeks, leaving messages in place.
func (s *Server) handlePoll(rw http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "conversationId required"})
		return
	}

	var msgs []domain.Message
	if r.URL.Query().Get("clear") == "true" {
		msgs = s.mailbox.Drain(conversationID)
	} else {
		msgs = s.mailbox.Peek(conversationID)
	}

	writeJSON(rw, http.StatusOK, pollResponse{
		Success:        true,
		Messages:       msgs,
		Count:          len(msgs),
		PollIntervalMs: s.pollIntervalMs,
	})
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       s.version,
		"conversations": s.mailbox.Conversations(),
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"time":          time.Now().Format(time.RFC3339),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
