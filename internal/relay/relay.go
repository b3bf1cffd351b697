// Package relay forwards canonical messages to the downstream automation
// webhook. Delivery is fire-and-forget: failures are logged and swallowed,
// never surfaced to the request that produced the message, never retried.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/domain"
	"chatrelay/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second

	// Values the downstream workflow keys on; kept stable across deploys.
	userAgent             = "bot-server"
	defaultConversationID = "nueva-conversacion"
)

// Config configures the downstream forwarder.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Forwarder posts derived message payloads to a single downstream endpoint.
type Forwarder struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a forwarder with a pooled HTTP client.
func New(cfg Config) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Forwarder{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  sharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

// sharedHTTPClient returns an HTTP client with connection pooling, reused for
// every downstream delivery.
func sharedHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// outboundPayload is the body the automation webhook expects: the canonical
// fields plus renamed duplicates (sender, message, messageId) and a reduced
// attachment shape.
type outboundPayload struct {
	Role           domain.Role          `json:"role"`
	Content        string               `json:"content"`
	ID             string               `json:"id"`
	Timestamp      time.Time            `json:"timestamp"`
	ConversationID string               `json:"conversationId"`
	Message        string               `json:"message"`
	Sender         domain.Role          `json:"sender"`
	MessageID      string               `json:"messageId"`
	UserAgent      string               `json:"userAgent"`
	UserID         string               `json:"userId"`
	Attachments    []outboundAttachment `json:"attachments,omitempty"`
	Payload        innerPayload         `json:"payload"`
}

type outboundAttachment struct {
	Type domain.AttachmentType `json:"type"`
	Name string                `json:"name"`
	URL  string                `json:"url"`
}

type innerPayload struct {
	Text        string              `json:"text"`
	ID          string              `json:"id"`
	Attachments []domain.Attachment `json:"attachments"`
}

func buildPayload(msg domain.Message) outboundPayload {
	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = defaultConversationID
	}

	var reduced []outboundAttachment
	for _, att := range msg.Attachments {
		reduced = append(reduced, outboundAttachment{Type: att.Type, Name: att.Name, URL: att.URL})
	}

	inner := innerPayload{Text: msg.Content, ID: msg.ID, Attachments: msg.Attachments}
	if inner.Attachments == nil {
		inner.Attachments = []domain.Attachment{}
	}

	return outboundPayload{
		Role:           msg.Role,
		Content:        msg.Content,
		ID:             msg.ID,
		Timestamp:      msg.Timestamp,
		ConversationID: conversationID,
		Message:        msg.Content,
		Sender:         msg.Role,
		MessageID:      msg.ID,
		UserAgent:      userAgent,
		UserID:         "user-" + msg.ID,
		Attachments:    reduced,
		Payload:        inner,
	}
}

// Forward posts the derived payload for msg and returns an error on network
// failure or a non-2xx status. Callers that need fire-and-forget semantics
// should use Dispatch instead.
func (f *Forwarder) Forward(ctx context.Context, msg domain.Message) error {
	body, err := json.Marshal(buildPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.RelayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatch forwards msg on a detached goroutine, decoupled from the request
// that produced it. Each dispatch gets its own timeout; the error, if any,
// is logged and dropped.
func (f *Forwarder) Dispatch(msg domain.Message) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		if err := f.Forward(ctx, msg); err != nil {
			metrics.RelayFailures.Inc()
			f.logger.Error("downstream relay failed",
				"conversation_id", msg.ConversationID,
				"message_id", msg.ID,
				"err", err,
			)
			return
		}
		metrics.RelayForwards.Inc()
		f.logger.Debug("message relayed downstream",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
		)
	}()
}

// Wait blocks until all detached forwards have finished. Used during
// shutdown and in tests.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}
