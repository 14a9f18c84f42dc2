// Package payload assembles provider-specific request bodies from a
// canonical message list, matching the three wire protocols the transport
// layer speaks.
package payload

import (
	"os"
	"runtime"
	"strings"

	"github.com/nox-kernel/central/internal/message"
)

// Kind selects which provider-specific shaping Build applies.
type Kind int

const (
	KindOpenAI Kind = iota
	KindOllamaGenerate
	KindOllamaChat
)

// KindForURL classifies an endpoint URL the way the payload builder needs
// to: Ollama's two chat/generate endpoints are distinguished by path, and
// everything else is treated as an OpenAI-compatible chat/completions URL.
func KindForURL(url string) Kind {
	switch {
	case strings.Contains(url, "/api/generate"):
		return KindOllamaGenerate
	case strings.Contains(url, "/api/chat"):
		return KindOllamaChat
	default:
		return KindOpenAI
	}
}

// Options carries everything needed to build a payload for any of the
// supported wire protocols.
type Options struct {
	Model       string
	Messages    []message.Message
	Temperature float64
	MaxTokens   int
	Stream      bool

	NumThread     int
	NumThreadsCap int
	NumCtx        int
	NumBatch      int
	KeepAlive     string
}

// Build produces the provider-specific request body for kind.
func Build(kind Kind, opts Options) map[string]any {
	switch kind {
	case KindOllamaGenerate:
		return buildOllamaGenerate(opts)
	case KindOllamaChat:
		return buildOllamaChat(opts)
	default:
		return buildOpenAI(opts)
	}
}

func buildOpenAI(opts Options) map[string]any {
	payload := map[string]any{
		"model":       opts.Model,
		"messages":    flattenMessages(opts.Messages),
		"temperature": opts.Temperature,
		"stream":      opts.Stream,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	return payload
}

func flattenMessages(messages []message.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]any{
			"role": string(m.Role),
			"content": []map[string]any{
				{"type": "text", "text": m.Content},
			},
		})
	}
	return out
}

func buildOllamaGenerate(opts Options) map[string]any {
	payload := map[string]any{
		"model":   opts.Model,
		"stream":  opts.Stream,
		"options": buildOptions(opts),
	}
	if prompt := RenderGeneratePrompt(opts.Messages); prompt != "" {
		payload["prompt"] = prompt
	}
	if system := systemPreamble(opts.Messages); system != "" {
		payload["system"] = system
	}
	if opts.KeepAlive != "" {
		payload["keep_alive"] = opts.KeepAlive
	}
	return payload
}

func buildOllamaChat(opts Options) map[string]any {
	chatMessages := make([]map[string]any, 0, len(opts.Messages))
	for _, m := range opts.Messages {
		chatMessages = append(chatMessages, map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	payload := map[string]any{
		"model":    opts.Model,
		"messages": chatMessages,
		"stream":   opts.Stream,
		"options":  buildOptions(opts),
	}
	if opts.KeepAlive != "" {
		payload["keep_alive"] = opts.KeepAlive
	}
	return payload
}

func buildOptions(opts Options) map[string]any {
	o := map[string]any{}
	if opts.Temperature != 0 {
		o["temperature"] = opts.Temperature
	}
	if threads := ResolveThreads(opts.NumThread, opts.NumThreadsCap); threads > 0 {
		o["num_thread"] = threads
	}
	if opts.NumCtx > 0 {
		o["num_ctx"] = opts.NumCtx
	}
	if opts.NumBatch > 0 {
		o["num_batch"] = opts.NumBatch
	}
	if opts.MaxTokens > 0 {
		o["num_predict"] = opts.MaxTokens
	}
	return o
}

// ResolveThreads honours an explicit thread count, else picks
// min(detected CPUs, cap) where cap defaults to 6 on constrained mobile
// environments and is otherwise uncapped.
func ResolveThreads(configuredThreads, configuredCap int) int {
	if configuredThreads > 0 {
		return configuredThreads
	}
	threadCap := defaultThreadCap(configuredCap)
	cpus := runtime.NumCPU()
	if threadCap > 0 && cpus > threadCap {
		return threadCap
	}
	return cpus
}

func defaultThreadCap(configuredCap int) int {
	if configuredCap > 0 {
		return configuredCap
	}
	if os.Getenv("TERMUX_VERSION") != "" || os.Getenv("ANDROID_ROOT") != "" {
		return 6
	}
	return 0
}

// RenderGeneratePrompt renders the last six user/assistant messages using
// the <|im_start|>role\n...\n<|im_end|> chat template, with a trailing
// <|im_start|>assistant\n to prompt the next turn.
func RenderGeneratePrompt(messages []message.Message) string {
	var turns []message.Message
	for _, m := range messages {
		if m.Role == message.RoleUser || m.Role == message.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > 6 {
		turns = turns[len(turns)-6:]
	}
	if len(turns) == 0 {
		return ""
	}
	return renderChatTemplate(turns)
}

// RenderProcessPrompt renders the full message list (including any system
// preamble) using the chat template, for the local process transport.
func RenderProcessPrompt(messages []message.Message) string {
	return renderChatTemplate(messages)
}

func renderChatTemplate(messages []message.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("\n<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

func systemPreamble(messages []message.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == message.RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
