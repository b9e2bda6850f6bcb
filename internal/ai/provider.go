// Package ai wraps remote text-generation services. Providers are stateless
// HTTP clients; Gateway adds the per-conversation state machine on top.
package ai

import "context"

// Message is one turn of provider input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates a single response for a conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
