package assistant

import "context"

// Message roles as used by chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in an assistant conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces an assistant reply for a conversation. Implementations
// must honor the context deadline; a slow upstream must not stall the request
// past the configured timeout.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
