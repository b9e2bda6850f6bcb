package ai

import "context"

// StreamProvider is an optional interface for providers that can deliver
// the response as successive fragments. Both channels are closed when the
// stream ends; a caller cancels simply by ceasing to consume.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}
