package domain

// EventType identifies the kind of webhook callback event.
type EventType string

// Callback event types delivered by the messaging platform.
const (
	// EventTypeMessage is delivered when a user sends a message to the bot.
	EventTypeMessage EventType = "message"
	// EventTypePostback is delivered when a user taps a postback action.
	EventTypePostback EventType = "postback"
)

// ContentTypeText marks a plain text message content.
const ContentTypeText = "text"

// EventSource identifies who produced a callback event.
type EventSource struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId,omitempty"`
	DomainID  int64  `json:"domainId,omitempty"`
}

// EventContent is the payload of a message event.
type EventContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// WebhookEvent is an inbound callback event from the messaging platform.
type WebhookEvent struct {
	Type    EventType    `json:"type"`
	Source  EventSource  `json:"source"`
	Content EventContent `json:"content,omitempty"`
	Data    string       `json:"data,omitempty"`
}

// IsTextMessage reports whether the event carries a user text message that
// the relay should process.
func (e *WebhookEvent) IsTextMessage() bool {
	return e.Type == EventTypeMessage &&
		e.Content.Type == ContentTypeText &&
		e.Source.UserID != ""
}
