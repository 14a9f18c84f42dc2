// Package instrument defines the pluggable "external model" collaborator a
// Chat Client may delegate a turn to instead of its own transport, along
// with one concrete Anthropic-backed implementation.
package instrument

import (
	"context"

	"github.com/nox-kernel/central/internal/message"
)

// Response is the normalized result of a delegated turn.
type Response struct {
	Text  *string
	Usage TokenUsage
}

// TokenUsage mirrors the accounting the Chat Client forwards to the cost tracker.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Instrument is the narrow contract a Chat Client holds at most one of. It
// mirrors Transport's send signature but operates over a full message list
// rather than a pre-built payload, since an instrument owns its own wire format.
type Instrument interface {
	Name() string
	SendChat(ctx context.Context, messages []message.Message, opts SendOptions) (*Response, error)
}

// SendOptions carries the per-turn knobs a Chat Client threads through.
type SendOptions struct {
	Temperature float64
	MaxTokens   int
	Stream      bool
	OnChunk     func(string)
}
