package botpress

import (
	"encoding/json"
	"strings"
	"testing"

	"chatrelay/internal/domain"
)

func TestNormalize_Text(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:           "text",
		ConversationID: "c1",
		Payload:        Payload{Text: "hello"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Role != domain.RoleAssistant {
		t.Errorf("role: got %q", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.ConversationID != "c1" {
		t.Errorf("conversationId: got %q", msg.ConversationID)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(msg.Attachments))
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp should be set at normalization time")
	}
}

func TestNormalize_Text_MissingText_UsesPlaceholder(t *testing.T) {
	msg, err := Normalize(WebhookPayload{Type: "text", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != PlaceholderContent {
		t.Errorf("expected placeholder, got %q", msg.Content)
	}
}

func TestNormalize_Text_CarriesPayloadAttachments(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:           "text",
		ConversationID: "c1",
		Payload: Payload{
			Text: "see attached",
			Attachments: []domain.Attachment{
				{ID: "a1", Type: domain.AttachmentOther, Name: "thing", URL: "http://x/t"},
			},
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ID != "a1" {
		t.Errorf("payload attachments should pass through: %+v", msg.Attachments)
	}
}

func TestNormalize_Image(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:         "image",
		Conversation: &Conversation{ID: "c2"},
		Payload:      Payload{ImageURL: "http://x/i.png"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ConversationID != "c2" {
		t.Errorf("conversationId from nested object: got %q", msg.ConversationID)
	}
	if msg.Content != "" {
		t.Errorf("image content should be empty, got %q", msg.Content)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Type != domain.AttachmentImage {
		t.Errorf("attachment type: got %q", att.Type)
	}
	if att.URL != "http://x/i.png" {
		t.Errorf("attachment url: got %q", att.URL)
	}
	if att.ID == "" {
		t.Error("attachment id should be generated when the platform supplies none")
	}
}

func TestNormalize_Image_NoURL_DegenerateMessage(t *testing.T) {
	msg, err := Normalize(WebhookPayload{Type: "image", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != "" || len(msg.Attachments) != 0 {
		t.Errorf("expected content-less, attachment-less message: content=%q attachments=%d",
			msg.Content, len(msg.Attachments))
	}
}

func TestNormalize_File(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:              "file",
		ConversationID:    "c1",
		BotpressMessageID: "bp-9",
		Payload:           Payload{Title: "report.pdf", FileURL: "http://x/r.pdf"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != "report.pdf" {
		t.Errorf("content should be title: got %q", msg.Content)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Type != domain.AttachmentDocument {
		t.Errorf("attachment type: got %q", att.Type)
	}
	if att.Name != "report.pdf" {
		t.Errorf("attachment name: got %q", att.Name)
	}
	if att.ID != "bp-9" {
		t.Errorf("attachment id should use the platform message id: got %q", att.ID)
	}
}

func TestNormalize_File_NoTitle_UsesFallbackName(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:           "file",
		ConversationID: "c1",
		Payload:        Payload{FileURL: "http://x/f"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != "" {
		t.Errorf("content should be empty without a title, got %q", msg.Content)
	}
	if msg.Attachments[0].Name != fileFallbackName {
		t.Errorf("attachment name: got %q", msg.Attachments[0].Name)
	}
}

func TestNormalize_UnknownType_FallsBackToTopLevelText(t *testing.T) {
	msg, err := Normalize(WebhookPayload{
		Type:           "carousel",
		Text:           "plain fallback",
		ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != "plain fallback" {
		t.Errorf("content: got %q", msg.Content)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("fallback arm must not produce attachments, got %d", len(msg.Attachments))
	}
}

func TestNormalize_UnknownType_NoText_UsesPlaceholder(t *testing.T) {
	msg, err := Normalize(WebhookPayload{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.Content != PlaceholderContent {
		t.Errorf("expected placeholder, got %q", msg.Content)
	}
}

func TestNormalize_MissingConversationID(t *testing.T) {
	_, err := Normalize(WebhookPayload{Type: "text", Payload: Payload{Text: "hi"}})
	if err != domain.ErrMissingConversationID {
		t.Fatalf("expected ErrMissingConversationID, got %v", err)
	}
}

func TestNormalize_ConversationIDResolutionOrder(t *testing.T) {
	// The platform alias wins over the nested object, which wins over the
	// direct field.
	msg, err := Normalize(WebhookPayload{
		Type:                   "text",
		BotpressConversationID: "alias",
		Conversation:           &Conversation{ID: "nested"},
		ConversationID:         "direct",
		Payload:                Payload{Text: "hi"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ConversationID != "alias" {
		t.Errorf("expected alias to win, got %q", msg.ConversationID)
	}

	msg, err = Normalize(WebhookPayload{
		Type:           "text",
		Conversation:   &Conversation{ID: "nested"},
		ConversationID: "direct",
		Payload:        Payload{Text: "hi"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if msg.ConversationID != "nested" {
		t.Errorf("expected nested to win over direct, got %q", msg.ConversationID)
	}
}

func TestNormalize_MessageIDPriority(t *testing.T) {
	msg, _ := Normalize(WebhookPayload{
		ConversationID:    "c1",
		BotpressMessageID: "bp-1",
		ID:                "generic-1",
	})
	if msg.ID != "bp-1" {
		t.Errorf("platform message id should win, got %q", msg.ID)
	}

	msg, _ = Normalize(WebhookPayload{ConversationID: "c1", ID: "generic-1"})
	if msg.ID != "generic-1" {
		t.Errorf("generic id should be used next, got %q", msg.ID)
	}

	msg, _ = Normalize(WebhookPayload{ConversationID: "c1"})
	if !strings.HasPrefix(msg.ID, "bot-") {
		t.Errorf("generated id should carry the bot prefix, got %q", msg.ID)
	}
}

func TestWebhookPayload_Unmarshal(t *testing.T) {
	data := `{
		"type": "image",
		"botpressMessageId": "bp-5",
		"conversation": {"id": "c9"},
		"payload": {"imageUrl": "http://x/i.png"}
	}`
	var p WebhookPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatal(err)
	}
	if p.Type != "image" {
		t.Errorf("type: got %q", p.Type)
	}
	if p.Conversation == nil || p.Conversation.ID != "c9" {
		t.Errorf("nested conversation: got %+v", p.Conversation)
	}
	if p.Payload.ImageURL != "http://x/i.png" {
		t.Errorf("imageUrl: got %q", p.Payload.ImageURL)
	}
}
