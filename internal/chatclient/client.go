// Package chatclient orchestrates one conversation: message history, payload
// shaping, transport dispatch, reasoning sanitisation, instrument delegation,
// and session logging. A Client is single-producer/single-consumer — owned
// by exactly one driver (CLI or test) for its lifetime.
package chatclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nox-kernel/central/internal/costs"
	"github.com/nox-kernel/central/internal/instrument"
	"github.com/nox-kernel/central/internal/message"
	"github.com/nox-kernel/central/internal/payload"
	"github.com/nox-kernel/central/internal/probe"
	"github.com/nox-kernel/central/internal/reasoning"
	"github.com/nox-kernel/central/internal/session"
	"github.com/nox-kernel/central/internal/transport"
)

// localModelAliases are configured-model names that should be substituted
// with an OpenAI-hosted equivalent when talking to api.openai.com.
var localModelAliases = map[string]bool{
	"centi-nox": true,
	"milli-nox": true,
	"micro-nox": true,
	"nano-nox":  true,
	"gpt-5":     true,
}

// Config bundles the fixed knobs a Client is constructed with.
type Config struct {
	URL            string
	Model          string
	APIKey         string
	TargetModelEnv string // CENTRAL_TARGET_MODEL override, if set
	OpenAIModelEnv string // CENTRAL_OPENAI_MODEL override, if set
	Temperature    float64
	MaxTokens      int
	Stream         bool
	Sanitize       bool
	StripReasoning bool
}

// Client is the stateful chat orchestrator described by the original core.
type Client struct {
	cfg         Config
	targetModel string
	persona     Persona
	transport   transport.Transport
	instrument  instrument.Instrument
	logger      *session.Logger
	sanitizer   func(string) string

	costsTracker *costs.Tracker
	costsLabel   string

	messages []message.Message
}

// Option customizes New.
type Option func(*Client)

// WithInstrument attaches a pluggable external-model collaborator; when set,
// OneTurn delegates to it instead of building a payload for transport.
func WithInstrument(inst instrument.Instrument) Option {
	return func(c *Client) { c.instrument = inst }
}

// WithLogger attaches a session logger; when set, completed turns are
// recorded as SessionRecords.
func WithLogger(logger *session.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSanitizer overrides the PII-redaction hook applied to outgoing user
// text before it is sent or logged. Defaults to the identity function — PII
// redaction itself is an external collaborator's concern.
func WithSanitizer(fn func(string) string) Option {
	return func(c *Client) { c.sanitizer = fn }
}

// WithCosts attaches a usage ledger. label identifies the provider in
// recorded costs.Record rows (e.g. "openai", "ollama", "anthropic"); pricing
// lookups only resolve known providers, everything else is recorded with
// CostUSD left at zero.
func WithCosts(tracker *costs.Tracker, label string) Option {
	return func(c *Client) { c.costsTracker = tracker; c.costsLabel = label }
}

// WithMessages seeds initial conversation history (e.g. a resumed session).
func WithMessages(messages []message.Message) Option {
	return func(c *Client) { c.messages = append([]message.Message(nil), messages...) }
}

// New builds a Client bound to tr for the given config and options.
func New(cfg Config, tr transport.Transport, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		transport: tr,
		sanitizer: func(s string) string { return s },
	}
	c.targetModel = selectTargetModel(cfg.URL, cfg.Model, cfg.TargetModelEnv, cfg.OpenAIModelEnv)
	c.persona = ResolvePersona(cfg.Model)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func selectTargetModel(url, model, targetModelEnv, openAIModelEnv string) string {
	if targetModelEnv != "" {
		return targetModelEnv
	}
	if strings.Contains(strings.ToLower(url), "api.openai.com") && localModelAliases[strings.ToLower(model)] {
		if openAIModelEnv != "" {
			return openAIModelEnv
		}
		return "gpt-4o-mini"
	}
	return model
}

// Messages returns a copy of the current conversation history.
func (c *Client) Messages() []message.Message {
	return append([]message.Message(nil), c.messages...)
}

// ResetMessages clears history, optionally seeding a system preamble.
func (c *Client) ResetMessages(system string) {
	c.messages = nil
	if system != "" {
		c.messages = append(c.messages, message.Message{Role: message.RoleSystem, Content: system})
	}
}

// SetMessages replaces history wholesale.
func (c *Client) SetMessages(messages []message.Message) {
	c.messages = append([]message.Message(nil), messages...)
}

// DescribeTarget returns a sanitized snapshot of the configured target for
// diagnostics/status display.
func (c *Client) DescribeTarget() map[string]any {
	return map[string]any{
		"url":              c.cfg.URL,
		"model":            c.cfg.Model,
		"central_name":     c.persona.CentralName,
		"central_scale":    c.persona.Scale,
		"noctics_variant":  c.persona.Variant,
		"model_target":     c.persona.ModelTarget,
		"stream":           c.cfg.Stream,
		"temperature":      c.cfg.Temperature,
		"max_tokens":       c.cfg.MaxTokens,
		"sanitize":         c.cfg.Sanitize,
		"strip_reasoning":  c.cfg.StripReasoning,
		"logging_enabled":  c.logger != nil,
		"target_model":     c.targetModel,
		"has_api_key":      c.cfg.APIKey != "",
		"instrument":       instrumentName(c.instrument),
		"instrument_label": instrumentName(c.instrument),
	}
}

func instrumentName(inst instrument.Instrument) any {
	if inst == nil {
		return nil
	}
	return inst.Name()
}

// WantsInstrument reports whether text asks for external-instrument help:
// a case-insensitive "[instrument query]", or (legacy) both "requires an
// instrument" and "paste a helper response".
func WantsInstrument(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "[instrument query]") {
		return true
	}
	return strings.Contains(lowered, "requires an instrument") && strings.Contains(lowered, "paste a helper response")
}

// OneTurn sends userText as the next user message, returning the cleaned
// assistant reply. onDelta, if non-nil and streaming is enabled, receives
// the reply text as it arrives, with <think> spans suppressed when
// StripReasoning is set.
func (c *Client) OneTurn(ctx context.Context, userText string, onDelta func(string)) (*string, error) {
	toSend := c.sanitizer(userText)
	turnMessages := append(c.Messages(), message.Message{Role: message.RoleUser, Content: toSend})

	streamCallback := onDelta
	var filter *reasoning.StreamFilter
	var publicEmitted string
	if c.cfg.Stream && c.cfg.StripReasoning && onDelta != nil {
		filter = &reasoning.StreamFilter{}
		streamCallback = func(piece string) {
			if public := filter.Feed(piece); public != "" {
				onDelta(public)
				publicEmitted += public
			}
		}
	}

	var assistant *string
	var err error
	if c.instrument != nil {
		assistant, err = c.sendViaInstrument(ctx, turnMessages, streamCallback)
	} else {
		assistant, err = c.sendViaTransport(ctx, turnMessages, streamCallback)
	}
	if err != nil {
		return nil, err
	}
	if assistant == nil {
		return nil, nil
	}

	cleaned := c.finishReply(*assistant, onDelta, filter, publicEmitted)
	c.recordCompletedTurn(toSend, cleaned)
	return &cleaned, nil
}

func (c *Client) sendViaInstrument(ctx context.Context, turnMessages []message.Message, onChunk func(string)) (*string, error) {
	resp, err := c.instrument.SendChat(ctx, turnMessages, instrument.SendOptions{
		Temperature: c.cfg.Temperature,
		MaxTokens:   positiveOrZero(c.cfg.MaxTokens),
		Stream:      c.cfg.Stream,
		OnChunk:     onChunk,
	})
	if err != nil {
		return nil, err
	}
	costUSD, _ := costs.EstimateUSD(c.instrument.Name(), c.targetModel, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	c.recordUsage(c.instrument.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens, costUSD)
	return resp.Text, nil
}

func (c *Client) sendViaTransport(ctx context.Context, turnMessages []message.Message, onChunk func(string)) (*string, error) {
	p := c.buildPayload(turnMessages)
	var text *string
	var meta map[string]any
	var err error
	if c.cfg.Stream {
		if onChunk == nil {
			onChunk = func(string) {}
		}
		text, meta, err = c.transport.Send(ctx, p, true, onChunk)
	} else {
		text, meta, err = c.transport.Send(ctx, p, false, nil)
	}
	if err != nil {
		return nil, err
	}
	if in, out, usd, ok := costs.EstimateFromMeta(c.costsLabel, c.targetModel, meta); ok {
		c.recordUsage(c.costsLabel, in, out, usd)
	}
	return text, nil
}

// recordUsage appends one costs.Record when a tracker is attached. Failures
// are swallowed — the ledger is additive bookkeeping, never load-bearing.
func (c *Client) recordUsage(provider string, inputTokens, outputTokens int, costUSD float64) {
	if c.costsTracker == nil {
		return
	}
	_ = c.costsTracker.Append(context.Background(), costs.Record{
		Timestamp:    time.Now(),
		Provider:     provider,
		Model:        c.targetModel,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      costUSD,
	})
}

func (c *Client) buildPayload(turnMessages []message.Message) map[string]any {
	opts := payload.Options{
		Model:       c.targetModel,
		Messages:    turnMessages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   positiveOrZero(c.cfg.MaxTokens),
		Stream:      c.cfg.Stream,
	}
	return payload.Build(payload.KindForURL(c.cfg.URL), opts)
}

func positiveOrZero(n int) int {
	if n > 0 {
		return n
	}
	return 0
}

// finishReply applies StripChainOfThought + CleanPublicReply to the full
// text, emitting any still-unseen public characters to onDelta so the
// printed stream matches the returned string.
func (c *Client) finishReply(full string, onDelta func(string), filter *reasoning.StreamFilter, publicEmitted string) string {
	text := full
	if c.cfg.StripReasoning {
		text = reasoning.StripChainOfThought(text)
		if c.cfg.Stream && onDelta != nil && filter != nil && c.instrument == nil {
			if len(text) > len(publicEmitted) {
				onDelta(text[len(publicEmitted):])
			}
		}
	}
	return reasoning.CleanPublicReply(text)
}

func (c *Client) recordCompletedTurn(userText, assistantText string) {
	c.messages = append(c.messages,
		message.Message{Role: message.RoleUser, Content: userText},
		message.Message{Role: message.RoleAssistant, Content: assistantText},
	)
	c.logTurn(userText, assistantText)
}

func (c *Client) logTurn(userText, assistantText string) {
	if c.logger == nil {
		return
	}
	toLog := c.systemPreambleAnd(userText, assistantText)
	_ = c.logger.LogTurn(toLog)
}

func (c *Client) systemPreambleAnd(userText, assistantText string) []message.Message {
	var out []message.Message
	if preamble, ok := message.Conversation(c.messages).Preamble(); ok {
		out = append(out, preamble)
	}
	return append(out,
		message.Message{Role: message.RoleUser, Content: userText},
		message.Message{Role: message.RoleAssistant, Content: assistantText},
	)
}

// RecordTurn records a pre-computed assistant reply without calling any
// transport — used when a local command substitutes for a model call.
func (c *Client) RecordTurn(userText, assistantText string) {
	toSend := c.sanitizer(userText)
	cleaned := assistantText
	if c.cfg.StripReasoning {
		cleaned = reasoning.StripChainOfThought(cleaned)
	}
	cleaned = reasoning.CleanPublicReply(cleaned)
	c.recordCompletedTurn(toSend, cleaned)
}

// ProcessInstrumentResult wraps instrumentText as an [INSTRUMENT RESULT]
// block, appends the stitching-rules system prompt, and runs a standard
// turn. The wrapped text (not the raw instrumentText) becomes history.
func (c *Client) ProcessInstrumentResult(ctx context.Context, instrumentText string, onDelta func(string)) (*string, error) {
	if instrumentText == "" {
		return nil, nil
	}
	wrapped := fmt.Sprintf("[INSTRUMENT RESULT]\n%s\n[/INSTRUMENT RESULT]", instrumentText)

	turnMessages := append(c.Messages(),
		message.Message{Role: message.RoleSystem, Content: LoadInstrumentPrompt()},
		message.Message{Role: message.RoleUser, Content: wrapped},
	)

	streamCallback := onDelta
	var filter *reasoning.StreamFilter
	var publicEmitted string
	if c.cfg.Stream && c.cfg.StripReasoning && onDelta != nil {
		filter = &reasoning.StreamFilter{}
		streamCallback = func(piece string) {
			if public := filter.Feed(piece); public != "" {
				onDelta(public)
				publicEmitted += public
			}
		}
	}

	var reply *string
	var err error
	if c.instrument != nil {
		reply, err = c.sendViaInstrument(ctx, turnMessages, streamCallback)
	} else {
		reply, err = c.sendViaTransport(ctx, turnMessages, streamCallback)
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}

	cleaned := c.finishReply(*reply, onDelta, filter, publicEmitted)
	c.recordCompletedTurn(wrapped, cleaned)
	return &cleaned, nil
}

// GetSessionTitle returns the current sidecar title, if logging is enabled.
func (c *Client) GetSessionTitle() (*string, error) {
	if c.logger == nil {
		return nil, nil
	}
	meta, err := c.logger.GetMeta()
	if err != nil {
		return nil, err
	}
	return meta.Title, nil
}

// SetSessionTitle overrides the sidecar title.
func (c *Client) SetSessionTitle(title string, custom bool) error {
	if c.logger == nil {
		return nil
	}
	return c.logger.SetTitle(title, custom)
}

// EnsureAutoTitle keeps an existing custom title, or else computes and
// persists a non-custom one from the current history.
func (c *Client) EnsureAutoTitle() (*string, error) {
	if c.logger == nil {
		return nil, nil
	}
	meta, err := c.logger.GetMeta()
	if err != nil {
		return nil, err
	}
	if meta.Title != nil && meta.Custom {
		return meta.Title, nil
	}

	title := session.ComputeTitleFromMessages(c.messages)
	if title == nil {
		return meta.Title, nil
	}
	if err := c.logger.SetTitle(*title, false); err != nil {
		return nil, err
	}
	return title, nil
}

// LogPath returns the current session log path, or "" if logging is disabled.
func (c *Client) LogPath() string {
	if c.logger == nil {
		return ""
	}
	return c.logger.LogPath()
}

// MaybeDeleteEmptySession removes the open session if it recorded zero
// user/assistant turns.
func (c *Client) MaybeDeleteEmptySession() (bool, error) {
	if c.logger == nil {
		return false, nil
	}
	return c.logger.MaybeDeleteEmptySession()
}

// AppendSessionToDayLog folds the current session into its date's DayLog.
func (c *Client) AppendSessionToDayLog() (string, error) {
	if c.logger == nil {
		return "", nil
	}
	return c.logger.AppendToDayLog()
}

// AdoptSessionLog rebinds the client's logger to continue an existing
// session log instead of the one it started.
func (c *Client) AdoptSessionLog(logPath string) error {
	if c.logger == nil {
		return nil
	}
	return c.logger.LoadExisting(logPath)
}

// CheckConnectivity probes whether the configured target is reachable,
// within timeout.
func (c *Client) CheckConnectivity(timeout time.Duration) error {
	return probe.CheckConnectivity(c.cfg.URL, timeout)
}
