package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentType classifies the content behind an attachment URL.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentVideo    AttachmentType = "video"
	AttachmentOther    AttachmentType = "other"
)

// Attachment references remote content carried by a message. The bytes are
// never embedded; URL must be resolvable by the client.
type Attachment struct {
	ID   string         `json:"id"`
	Type AttachmentType `json:"type"`
	Name string         `json:"name"`
	URL  string         `json:"url"`
}

// Message is the canonical representation of a chat message inside the relay.
// ConversationID is the correlation key; messages without one cannot be
// routed and are rejected before they reach the mailbox.
type Message struct {
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ID             string       `json:"id"`
	Timestamp      time.Time    `json:"timestamp"`
	ConversationID string       `json:"conversationId"`
	Attachments    []Attachment `json:"attachments"`
}
