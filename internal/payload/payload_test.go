package payload

import (
	"strings"
	"testing"

	"github.com/nox-kernel/central/internal/message"
)

func sampleMessages() []message.Message {
	return []message.Message{
		{Role: message.RoleSystem, Content: "be helpful"},
		{Role: message.RoleUser, Content: "hi"},
		{Role: message.RoleAssistant, Content: "hello"},
		{Role: message.RoleUser, Content: "how are you"},
	}
}

func TestKindForURL(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"http://127.0.0.1:11434/api/generate", KindOllamaGenerate},
		{"http://127.0.0.1:11434/api/chat", KindOllamaChat},
		{"https://api.openai.com/v1/chat/completions", KindOpenAI},
		{"https://openrouter.ai/api/v1/chat/completions", KindOpenAI},
	}
	for _, tt := range tests {
		if got := KindForURL(tt.url); got != tt.want {
			t.Errorf("KindForURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestBuild_OpenAI_FlattensContent(t *testing.T) {
	opts := Options{Model: "gpt-4o-mini", Messages: sampleMessages(), Stream: true, MaxTokens: 256}
	out := Build(KindOpenAI, opts)

	if _, hasPrompt := out["prompt"]; hasPrompt {
		t.Fatal("openai payload must not carry prompt")
	}
	msgs, ok := out["messages"].([]map[string]any)
	if !ok || len(msgs) != len(opts.Messages) {
		t.Fatalf("expected %d messages, got %v", len(opts.Messages), out["messages"])
	}
	for _, m := range msgs {
		content, ok := m["content"].([]map[string]any)
		if !ok || len(content) != 1 || content[0]["type"] != "text" {
			t.Fatalf("expected list-typed content, got %v", m["content"])
		}
	}
	if out["max_tokens"] != 256 {
		t.Fatalf("expected max_tokens 256, got %v", out["max_tokens"])
	}
	if out["stream"] != true {
		t.Fatal("expected stream=true")
	}
}

func TestBuild_OpenAI_OmitsMaxTokensWhenNotPositive(t *testing.T) {
	out := Build(KindOpenAI, Options{Model: "m", Messages: sampleMessages()})
	if _, ok := out["max_tokens"]; ok {
		t.Fatal("max_tokens should be omitted when not positive")
	}
}

func TestBuild_OllamaGenerate_DropsMessagesKeepsPrompt(t *testing.T) {
	out := Build(KindOllamaGenerate, Options{Model: "m", Messages: sampleMessages()})

	if _, ok := out["messages"]; ok {
		t.Fatal("ollama generate payload must not carry messages")
	}
	prompt, ok := out["prompt"].(string)
	if !ok {
		t.Fatalf("expected prompt string, got %v", out["prompt"])
	}
	if !strings.HasSuffix(prompt, "<|im_start|>assistant\n") {
		t.Fatalf("expected trailing assistant tag, got %q", prompt)
	}
	if system, ok := out["system"].(string); !ok || system != "be helpful" {
		t.Fatalf("expected system preamble, got %v", out["system"])
	}
}

func TestBuild_OllamaChat_KeepsMessagesDropsPrompt(t *testing.T) {
	out := Build(KindOllamaChat, Options{Model: "m", Messages: sampleMessages()})

	if _, ok := out["prompt"]; ok {
		t.Fatal("ollama chat payload must not carry prompt")
	}
	if _, ok := out["system"]; ok {
		t.Fatal("ollama chat payload must not carry system")
	}
	msgs, ok := out["messages"].([]map[string]any)
	if !ok || len(msgs) != len(sampleMessages()) {
		t.Fatalf("expected messages preserved as-is, got %v", out["messages"])
	}
}

func TestRenderGeneratePrompt_TrimsToLastSix(t *testing.T) {
	var messages []message.Message
	for i := 0; i < 10; i++ {
		messages = append(messages,
			message.Message{Role: message.RoleUser, Content: "u"},
			message.Message{Role: message.RoleAssistant, Content: "a"},
		)
	}
	prompt := RenderGeneratePrompt(messages)
	if strings.Count(prompt, "<|im_start|>user") != 3 {
		t.Fatalf("expected 3 user turns in last 6 entries, got prompt:\n%s", prompt)
	}
}

func TestResolveThreads_ExplicitWins(t *testing.T) {
	if got := ResolveThreads(4, 2); got != 4 {
		t.Fatalf("expected explicit thread count to win, got %d", got)
	}
}

func TestBuild_OllamaGenerate_IncludesOptions(t *testing.T) {
	out := Build(KindOllamaGenerate, Options{
		Model: "m", Messages: sampleMessages(), Temperature: 0.5, MaxTokens: 100, NumCtx: 4096,
	})
	opts, ok := out["options"].(map[string]any)
	if !ok {
		t.Fatalf("expected options map, got %v", out["options"])
	}
	if opts["temperature"] != 0.5 {
		t.Fatalf("expected temperature 0.5, got %v", opts["temperature"])
	}
	if opts["num_predict"] != 100 {
		t.Fatalf("expected num_predict 100, got %v", opts["num_predict"])
	}
	if opts["num_ctx"] != 4096 {
		t.Fatalf("expected num_ctx 4096, got %v", opts["num_ctx"])
	}
}
