package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPTransport_OllamaChat_NonStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hi"},"done":true}`)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/api/chat", "", nil)
	text, _, err := tr.Send(context.Background(), map[string]any{"model": "m", "messages": []map[string]any{}}, false, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if text == nil || *text != "hi" {
		t.Fatalf("expected \"hi\", got %v", text)
	}
}

func TestHTTPTransport_SSEStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			``,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			``,
			`data:[DONE]`,
			``,
		}
		fmt.Fprint(w, strings.Join(events, "\n"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/v1/chat/completions", "", nil)
	var chunks []string
	text, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, true, func(s string) {
		chunks = append(chunks, s)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
	if text == nil || *text != "Hello" {
		t.Fatalf("expected \"Hello\", got %v", text)
	}
}

func TestHTTPTransport_OllamaGenerate_DropsMessages(t *testing.T) {
	var sawMessages bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		if strings.Contains(string(body), "messages") {
			sawMessages = true
		}
		fmt.Fprint(w, `{"response":"ok","done":true}`)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/api/generate", "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{
		"model": "m", "prompt": "hi", "messages": []map[string]any{{"role": "user", "content": "hi"}},
	}, false, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sawMessages {
		t.Fatal("expected messages field to be dropped for /api/generate")
	}
}

func TestHTTPTransport_401_CarriesUnauthorizedHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "invalid api key")
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, false, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var transportErr *Error
	if !asError(err, &transportErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if transportErr.Kind != KindHTTPStatus || transportErr.StatusCode != 401 {
		t.Fatalf("unexpected error: %+v", transportErr)
	}
	if !strings.Contains(transportErr.Message, "unauthorized") {
		t.Fatalf("expected unauthorized hint, got %q", transportErr.Message)
	}
}

func TestHTTPTransport_404_CarriesNotFoundHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, false, nil)
	var transportErr *Error
	if !asError(err, &transportErr) || !strings.Contains(transportErr.Message, "not found") {
		t.Fatalf("expected not-found hint, got %v", err)
	}
}

func TestHTTPTransport_BadResponse_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json at all")
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL, "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, false, nil)
	var transportErr *Error
	if !asError(err, &transportErr) || transportErr.Kind != KindBadResponse {
		t.Fatalf("expected bad_response, got %v", err)
	}
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	tr := NewHTTPTransport("http://127.0.0.1:1", "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, false, nil)
	var transportErr *Error
	if !asError(err, &transportErr) || transportErr.Kind != KindUnreachable {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

func TestHTTPTransport_OllamaChat_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/api/chat", "", nil)
	_, _, err := tr.Send(context.Background(), map[string]any{"model": "m"}, false, nil)
	var transportErr *Error
	if !asError(err, &transportErr) || transportErr.Kind != KindUpstreamError {
		t.Fatalf("expected upstream_error, got %v", err)
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
