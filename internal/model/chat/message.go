package chat

import (
	"errors"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the API accepts from clients.
// System messages are composed server-side and never cross this boundary.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the wire payload of a chat turn: the full transcript up
// to and including the newest user message.
type TurnRequest struct {
	Messages []TurnMessage `json:"messages"`
}

// TurnMessage mirrors Message with pointer fields so that a missing key
// is distinguishable from an empty value during validation.
type TurnMessage struct {
	Role    *Role   `json:"role"`
	Content *string `json:"content"`
}

// ErrNoMessages rejects a turn request with an empty message list.
var ErrNoMessages = errors.New("messages must not be empty")

// Validate checks the request against the wire schema before any upstream
// work happens.
func (r TurnRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}

	for i, msg := range r.Messages {
		if msg.Role == nil {
			return fmt.Errorf("messages[%d]: role is required", i)
		}
		if !msg.Role.Valid() {
			return fmt.Errorf("messages[%d]: invalid role %q", i, *msg.Role)
		}
		if msg.Content == nil {
			return fmt.Errorf("messages[%d]: content is required", i)
		}
	}

	return nil
}

// History converts a validated request into domain messages. Call Validate
// first; History panics on nil fields.
func (r TurnRequest) History() []Message {
	history := make([]Message, len(r.Messages))
	for i, msg := range r.Messages {
		history[i] = Message{Role: *msg.Role, Content: *msg.Content}
	}
	return history
}
