package client

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation as seen by the consumer.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered conversation history. Published values are
// never mutated in place; every update replaces the whole slice.
type Transcript []Message

func (t Transcript) clone() Transcript {
	return append(Transcript(nil), t...)
}

// turnRequest is the wire payload for one chat turn.
type turnRequest struct {
	Messages []Message `json:"messages"`
}
