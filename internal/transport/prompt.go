package transport

import (
	"fmt"
	"strings"
)

// payloadToPrompt derives a chat-template prompt string directly from a
// payload map: the "messages" list if present, else "prompt"/"system".
// Shared by ProcessTransport regardless of which payload.Kind built the map.
func payloadToPrompt(payload map[string]any) string {
	messages := toMessageList(payload["messages"])
	if len(messages) > 0 {
		var blocks []string
		for _, msg := range messages {
			role := strings.TrimSpace(fmt.Sprintf("%v", msg["role"]))
			if role == "" || role == "<nil>" {
				role = "user"
			}
			content := strings.TrimSpace(flattenContent(msg["content"]))
			if content == "" {
				continue
			}
			blocks = append(blocks, fmt.Sprintf("<|im_start|>%s\n%s\n<|im_end|>", role, content))
		}
		if len(blocks) == 0 {
			return ""
		}
		blocks = append(blocks, "<|im_start|>assistant\n")
		return strings.Join(blocks, "\n")
	}

	prompt := strings.TrimSpace(fmt.Sprintf("%v", nilToEmpty(payload["prompt"])))
	if prompt == "" {
		return ""
	}
	system := strings.TrimSpace(fmt.Sprintf("%v", nilToEmpty(payload["system"])))
	if system == "" {
		return prompt
	}
	return fmt.Sprintf(
		"<|im_start|>system\n%s\n<|im_end|>\n<|im_start|>user\n%s\n<|im_end|>\n<|im_start|>assistant\n",
		system, prompt,
	)
}

func nilToEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func toMessageList(v any) []map[string]any {
	switch vv := v.(type) {
	case []map[string]any:
		return vv
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func flattenContent(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case []map[string]any:
		var parts []string
		for _, item := range vv {
			parts = append(parts, flattenContentItem(item))
		}
		return strings.Join(parts, "")
	case []any:
		var parts []string
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				parts = append(parts, flattenContentItem(m))
			} else if item != nil {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func flattenContentItem(item map[string]any) string {
	if text, ok := item["text"]; ok && text != nil {
		return fmt.Sprintf("%v", text)
	}
	return fmt.Sprintf("%v", item)
}
