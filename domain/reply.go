package domain

import "strings"

// AgentMessage is one message fragment in an agent backend response.
type AgentMessage struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// AgentResponse is the reply payload of the agent backend message endpoint.
// The backend uses two shapes: a single message object, or a list of message
// fragments. Exactly one of Message and Messages is expected to be set.
type AgentResponse struct {
	Message  *AgentMessage  `json:"message,omitempty"`
	Messages []AgentMessage `json:"messages,omitempty"`
}

// ReplyText extracts the reply text from either response shape. Fragments of
// a list response are joined with newline separators. Returns the empty
// string when neither shape carries text.
func (r *AgentResponse) ReplyText() string {
	if r == nil {
		return ""
	}
	if r.Message != nil && r.Message.Text != "" {
		return r.Message.Text
	}
	if len(r.Messages) > 0 {
		parts := make([]string, 0, len(r.Messages))
		for _, m := range r.Messages {
			if m.Text != "" {
				parts = append(parts, m.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
