// Package transport normalises three wire protocols — OpenAI-style
// chat/completions over SSE, Ollama's NDJSON generate/chat endpoints, and a
// local child-process runner — behind one send contract.
package transport

import "context"

// Transport executes one payload against a backend, optionally streaming
// tokens through onChunk as they arrive. fullText is nil when the provider
// produced no content; meta carries whatever raw response data the
// transport captured (for diagnostics, not part of the contract).
type Transport interface {
	Send(ctx context.Context, payload map[string]any, stream bool, onChunk func(string)) (fullText *string, meta map[string]any, err error)
}

func strPtr(s string) *string { return &s }

func ptrIfAny(s string, had bool) *string {
	if !had {
		return nil
	}
	return strPtr(s)
}
