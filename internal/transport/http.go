package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTransport dispatches to the OpenAI-style SSE wire format or one of
// Ollama's NDJSON endpoints, purely based on the configured URL's path —
// mirroring the single-class dispatch of the original LLMTransport.
type HTTPTransport struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewHTTPTransport builds a transport bound to url using client (or
// http.DefaultClient if nil).
func NewHTTPTransport(url, apiKey string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{URL: url, APIKey: apiKey, Client: client}
}

func (t *HTTPTransport) isGenerate() bool { return strings.Contains(t.URL, "/api/generate") }
func (t *HTTPTransport) isOllamaChat() bool { return strings.Contains(t.URL, "/api/chat") }

func (t *HTTPTransport) Send(ctx context.Context, payload map[string]any, stream bool, onChunk func(string)) (*string, map[string]any, error) {
	sendPayload := make(map[string]any, len(payload))
	for k, v := range payload {
		sendPayload[k] = v
	}
	if t.isGenerate() {
		delete(sendPayload, "messages")
	}
	if t.isOllamaChat() {
		delete(sendPayload, "prompt")
		delete(sendPayload, "system")
	}

	body, err := json.Marshal(sendPayload)
	if err != nil {
		return nil, nil, newBadResponse(t.URL, fmt.Sprintf("failed to encode payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, newUnreachable(t.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, nil, newUnreachable(t.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, nil, newHTTPStatus(t.URL, resp.StatusCode, string(errBody))
	}

	switch {
	case t.isGenerate():
		if stream {
			return t.streamGenerate(resp.Body, onChunk)
		}
		return t.requestGenerate(resp.Body)
	case t.isOllamaChat():
		if stream {
			return t.streamOllamaChat(resp.Body, onChunk)
		}
		return t.requestOllamaChat(resp.Body)
	default:
		if stream {
			return t.streamSSE(resp.Body, onChunk)
		}
		return t.requestJSON(resp.Body)
	}
}

func (t *HTTPTransport) requestJSON(r io.Reader) (*string, map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, newBadResponse(t.URL, err.Error())
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, newBadResponse(t.URL, fmt.Sprintf("non-JSON response: %v", err))
	}
	return extractChatCompletionMessage(obj), obj, nil
}

func (t *HTTPTransport) requestGenerate(r io.Reader) (*string, map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, newBadResponse(t.URL, err.Error())
	}
	var responses []string
	var objects []any
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			continue
		}
		objects = append(objects, data)
		if errVal, ok := data["error"]; ok && errVal != nil && errVal != "" {
			return nil, nil, newUpstreamError(t.URL, fmt.Sprintf("%v", errVal))
		}
		if text, ok := data["response"].(string); ok && text != "" {
			responses = append(responses, text)
		}
	}
	joined := strings.Join(responses, "")
	return ptrIfAny(joined, len(responses) > 0), map[string]any{"responses": objects}, nil
}

func (t *HTTPTransport) requestOllamaChat(r io.Reader) (*string, map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, newBadResponse(t.URL, err.Error())
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, newBadResponse(t.URL, fmt.Sprintf("non-JSON response: %v", err))
	}
	if errVal, ok := obj["error"]; ok && errVal != nil && errVal != "" {
		return nil, nil, newUpstreamError(t.URL, fmt.Sprintf("%v", errVal))
	}
	return extractOllamaMessage(obj), obj, nil
}

func (t *HTTPTransport) streamSSE(r io.Reader, onChunk func(string)) (*string, map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var buffer []string
	var acc strings.Builder
	had := false

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if len(buffer) == 0 {
				continue
			}
			dataStr := strings.TrimSpace(strings.Join(buffer, "\n"))
			buffer = nil
			if dataStr == "" {
				continue
			}
			if dataStr == "[DONE]" {
				break
			}
			if piece := extractSSEPiece(dataStr); piece != "" {
				onChunk(piece)
				acc.WriteString(piece)
				had = true
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			buffer = append(buffer, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
		buffer = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, newUnreachable(t.URL, err)
	}

	text := acc.String()
	return ptrIfAny(text, had), nil, nil
}

func (t *HTTPTransport) streamOllamaChat(r io.Reader, onChunk func(string)) (*string, map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var acc strings.Builder
	had := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			continue
		}
		if errVal, ok := data["error"]; ok && errVal != nil && errVal != "" {
			return nil, nil, newUpstreamError(t.URL, fmt.Sprintf("%v", errVal))
		}
		text := ""
		if msg, ok := data["message"].(map[string]any); ok {
			if content, ok := msg["content"].(string); ok {
				text = content
			}
		}
		if text == "" {
			if content, ok := data["response"].(string); ok {
				text = content
			}
		}
		if text != "" {
			acc.WriteString(text)
			had = true
			onChunk(text)
		}
		if done, ok := data["done"].(bool); ok && done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, newUnreachable(t.URL, err)
	}

	result := acc.String()
	return ptrIfAny(result, had), nil, nil
}

func (t *HTTPTransport) streamGenerate(r io.Reader, onChunk func(string)) (*string, map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var acc strings.Builder
	had := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			continue
		}
		if errVal, ok := data["error"]; ok && errVal != nil && errVal != "" {
			return nil, nil, newUpstreamError(t.URL, fmt.Sprintf("%v", errVal))
		}
		if text, ok := data["response"].(string); ok && text != "" {
			acc.WriteString(text)
			had = true
			onChunk(text)
		}
		if done, ok := data["done"].(bool); ok && done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, newUnreachable(t.URL, err)
	}

	result := acc.String()
	return ptrIfAny(result, had), nil, nil
}

func extractSSEPiece(dataStr string) string {
	var event map[string]any
	if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
		if !strings.HasPrefix(strings.TrimSpace(dataStr), "{") {
			return dataStr
		}
		return ""
	}
	choices, _ := event["choices"].([]any)
	var choice map[string]any
	if len(choices) > 0 {
		choice, _ = choices[0].(map[string]any)
	}
	if choice == nil {
		return ""
	}
	if delta, ok := choice["delta"].(map[string]any); ok {
		if piece, ok := delta["content"].(string); ok {
			return piece
		}
	}
	if msg, ok := choice["message"].(map[string]any); ok {
		if piece, ok := msg["content"].(string); ok {
			return piece
		}
	}
	if piece, ok := choice["text"].(string); ok {
		return piece
	}
	return ""
}

func extractChatCompletionMessage(obj map[string]any) *string {
	choices, _ := obj["choices"].([]any)
	if len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]any)
	if choice == nil {
		return nil
	}
	msg, _ := choice["message"].(map[string]any)
	if msg == nil {
		return nil
	}
	content, ok := msg["content"].(string)
	if !ok {
		return nil
	}
	return &content
}

func extractOllamaMessage(obj map[string]any) *string {
	if msg, ok := obj["message"].(map[string]any); ok {
		if content, ok := msg["content"].(string); ok {
			return &content
		}
	}
	if content, ok := obj["response"].(string); ok {
		return &content
	}
	return nil
}
