package botpress

import (
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/domain"
)

const (
	// PlaceholderContent is used when no message text can be extracted.
	PlaceholderContent = "No se pudo extraer el mensaje"

	imageAttachmentName = "Imagen del bot"
	fileFallbackName    = "Archivo"
)

// Normalize converts a webhook payload into exactly one canonical message.
// It fails only when no conversation id resolves; every payload type
// otherwise produces a valid message, possibly content-less. The timestamp
// is always set at normalization time, never taken from the remote payload.
func Normalize(p WebhookPayload) (domain.Message, error) {
	conversationID := p.BotpressConversationID
	if conversationID == "" && p.Conversation != nil {
		conversationID = p.Conversation.ID
	}
	if conversationID == "" {
		conversationID = p.ConversationID
	}
	if conversationID == "" {
		return domain.Message{}, domain.ErrMissingConversationID
	}

	content := PlaceholderContent
	var attachments []domain.Attachment

	switch p.Type {
	case "text":
		if p.Payload.Text != "" {
			content = p.Payload.Text
			attachments = p.Payload.Attachments
		}
	case "image":
		content = ""
		if p.Payload.ImageURL != "" {
			attachments = append(attachments, domain.Attachment{
				ID:   attachmentID(p.BotpressMessageID),
				Type: domain.AttachmentImage,
				Name: imageAttachmentName,
				URL:  p.Payload.ImageURL,
			})
		}
	case "file":
		content = p.Payload.Title
		if p.Payload.FileURL != "" {
			name := p.Payload.Title
			if name == "" {
				name = fileFallbackName
			}
			attachments = append(attachments, domain.Attachment{
				ID:   attachmentID(p.BotpressMessageID),
				Type: domain.AttachmentDocument,
				Name: name,
				URL:  p.Payload.FileURL,
			})
		}
	default:
		if p.Text != "" {
			content = p.Text
		}
	}

	return domain.Message{
		Role:           domain.RoleAssistant,
		Content:        content,
		ID:             messageID(p),
		Timestamp:      time.Now().UTC(),
		ConversationID: conversationID,
		Attachments:    attachments,
	}, nil
}

// messageID picks the message id by priority: the platform message id, the
// generic platform id, then a generated bot-prefixed id.
func messageID(p WebhookPayload) string {
	if p.BotpressMessageID != "" {
		return p.BotpressMessageID
	}
	if p.ID != "" {
		return p.ID
	}
	return "bot-" + uuid.NewString()
}

func attachmentID(platformID string) string {
	if platformID != "" {
		return platformID
	}
	return "att-" + uuid.NewString()
}
