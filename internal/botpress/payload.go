// Package botpress decodes Botpress webhook callbacks into the relay's
// canonical message shape.
package botpress

import "chatrelay/internal/domain"

// WebhookPayload is the JSON body Botpress posts for each bot reply. The
// shape of Payload depends on Type; unknown types fall back to the top-level
// Text field. The conversation id may arrive under three different names
// depending on the Botpress integration version.
type WebhookPayload struct {
	Type                   string        `json:"type"`
	Text                   string        `json:"text,omitempty"`
	ID                     string        `json:"id,omitempty"`
	BotpressMessageID      string        `json:"botpressMessageId,omitempty"`
	BotpressConversationID string        `json:"botpressConversationId,omitempty"`
	ConversationID         string        `json:"conversationId,omitempty"`
	Conversation           *Conversation `json:"conversation,omitempty"`
	Payload                Payload       `json:"payload,omitempty"`
}

// Conversation is the nested conversation object some payload variants carry.
type Conversation struct {
	ID string `json:"id"`
}

// Payload carries the type-specific message body.
type Payload struct {
	Text        string              `json:"text,omitempty"`
	ImageURL    string              `json:"imageUrl,omitempty"`
	Title       string              `json:"title,omitempty"`
	FileURL     string              `json:"fileUrl,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}
