package instrument

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nox-kernel/central/internal/message"
)

// AnthropicInstrument delegates a turn to an Anthropic model, used when the
// primary model asks for help from a stronger external collaborator.
type AnthropicInstrument struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int
}

// NewAnthropicInstrument builds an instrument bound to apiKey/model. maxTokens
// is the fallback used when a call doesn't specify its own.
func NewAnthropicInstrument(apiKey, model string, maxTokens int) (*AnthropicInstrument, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicInstrument{client: client, model: anthropic.Model(model), maxTokens: maxTokens}, nil
}

func newAnthropicInstrumentForTest(apiKey, model, baseURL string, httpClient *http.Client) (*AnthropicInstrument, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)
	return &AnthropicInstrument{client: client, model: anthropic.Model(model)}, nil
}

func (i *AnthropicInstrument) Name() string { return "anthropic" }

// SendChat sends messages to Anthropic and normalizes the reply. Streaming is
// not split into incremental deltas here (the out-of-scope instrument
// contract only requires a final onChunk callback for parity with Transport);
// the full text is delivered once, then returned.
func (i *AnthropicInstrument) SendChat(ctx context.Context, messages []message.Message, opts SendOptions) (*Response, error) {
	systemText, turnMessages := splitSystem(messages)

	anthropicMessages, err := toAnthropicMessages(turnMessages)
	if err != nil {
		return nil, err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = i.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := anthropic.MessageNewParams{
		Model:     i.model,
		MaxTokens: int64(maxTokens),
		Messages:  anthropicMessages,
	}
	if systemText != "" {
		body.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	msg, err := i.client.Messages.New(ctx, body)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	full := strings.Join(parts, "\n")
	if opts.Stream && opts.OnChunk != nil && full != "" {
		opts.OnChunk(full)
	}

	return &Response{
		Text: &full,
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func splitSystem(messages []message.Message) (string, []message.Message) {
	var systemParts []string
	var rest []message.Message
	for _, msg := range messages {
		if msg.Role == message.RoleSystem {
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(systemParts, "\n\n"), rest
}

func toAnthropicMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return nil, fmt.Errorf("unsupported message role %q for instrument turn", msg.Role)
		}
	}
	return out, nil
}
