package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ErrNotStarted is returned when Send or Stream is called before Start.
var ErrNotStarted = errors.New("ai: chat not started, call Start first")

// apologyTemplate carries a short diagnostic to the user in place of a raw
// transport error, so a backend failure never breaks the conversation.
const apologyTemplate = "I apologize, but I encountered an error: %s. Please try again."

// Gateway is the stateful conversation wrapper around a provider.
// State machine: Idle -> ChatStarted; Start/Reset re-enter ChatStarted and
// discard all prior conversation context.
type Gateway struct {
	mu          sync.Mutex
	provider    Provider
	logger      *slog.Logger
	timeout     time.Duration
	instruction string
	history     []Message
	started     bool
}

// NewGateway wraps provider. timeout bounds each non-streaming model call.
func NewGateway(provider Provider, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: provider, timeout: timeout, logger: logger}
}

// Start opens a conversation with the given system instruction. Any prior
// conversation context is discarded; this is a hard reset, not an append.
func (g *Gateway) Start(instruction string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.instruction = instruction
	g.history = nil
	g.started = true
}

// Reset is equivalent to Start. Used when the user begins a new conversation
// or switches language, since the instruction is baked into the conversation
// start rather than re-sent per message.
func (g *Gateway) Reset(instruction string) { g.Start(instruction) }

// SetInstruction swaps the held system instruction without dropping the
// conversation. The pipeline uses this to refresh grounding context per turn.
func (g *Gateway) SetInstruction(instruction string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return ErrNotStarted
	}
	g.instruction = instruction
	return nil
}

// Started reports whether a conversation is open.
func (g *Gateway) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Send forwards the user text, prefixed by the held system instruction, to
// the provider and returns the reply. Provider failures are absorbed into a
// user-safe apology string; the only error Send itself returns is
// ErrNotStarted. No lock is held during the network call.
func (g *Gateway) Send(ctx context.Context, userText string) (string, error) {
	msgs, err := g.compose(userText)
	if err != nil {
		return "", err
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reply, err := g.provider.Chat(cctx, msgs)
	if err != nil {
		g.logger.Warn("model call failed", "error", err)
		reply = fmt.Sprintf(apologyTemplate, shortDiagnostic(err))
	}

	g.remember(userText, reply)
	return reply, nil
}

// Stream is the streaming variant of Send. Fragments arrive on the returned
// channel until the response completes; a provider failure is delivered as a
// final apology fragment. Every send is guarded by ctx so an abandoned
// consumer never strands the pipeline; whatever was produced before the
// cancellation is still remembered as the assistant reply.
func (g *Gateway) Stream(ctx context.Context, userText string) (<-chan string, error) {
	msgs, err := g.compose(userText)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 16)

	sp, ok := g.provider.(StreamProvider)
	if !ok {
		// Provider cannot stream; deliver the whole reply as one fragment.
		go func() {
			defer close(out)
			reply, err := g.provider.Chat(ctx, msgs)
			if err != nil {
				g.logger.Warn("model call failed", "error", err)
				reply = fmt.Sprintf(apologyTemplate, shortDiagnostic(err))
			}
			g.remember(userText, reply)
			select {
			case out <- reply:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	go func() {
		defer close(out)

		chunks, errs := sp.StreamChat(ctx, msgs)
		var b strings.Builder
		cancelled := false
		for c := range chunks {
			b.WriteString(c)
			if cancelled {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				cancelled = true
			}
		}
		if !cancelled {
			select {
			case err := <-errs:
				if err != nil {
					g.logger.Warn("model stream failed", "error", err)
					apology := fmt.Sprintf(apologyTemplate, shortDiagnostic(err))
					b.WriteString(apology)
					select {
					case out <- apology:
					case <-ctx.Done():
					}
				}
			default:
			}
		}
		g.remember(userText, b.String())
	}()

	return out, nil
}

// compose snapshots conversation state and builds the provider input: the
// held instruction concatenated with the user text, appended to history.
func (g *Gateway) compose(userText string) ([]Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return nil, ErrNotStarted
	}
	msgs := make([]Message, 0, len(g.history)+1)
	msgs = append(msgs, g.history...)
	msgs = append(msgs, Message{
		Role:    "user",
		Content: g.instruction + "\n\nUser: " + userText,
	})
	return msgs, nil
}

func (g *Gateway) remember(userText, reply string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history,
		Message{Role: "user", Content: userText},
		Message{Role: "assistant", Content: reply},
	)
}

func shortDiagnostic(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
