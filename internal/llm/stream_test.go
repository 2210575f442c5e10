package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// drain reads a stream to its end and returns the pieces and the terminal
// error (nil on a clean io.EOF).
func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var pieces []string
	for {
		text, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return pieces, nil
		}
		if err != nil {
			return pieces, err
		}
		pieces = append(pieces, text)
	}
}

func TestGoogleStream(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Coral\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" reefs\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{Type: "google", Model: "gemini-2.5-flash", APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stream, err := p.Stream(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(pieces, "") != "Coral reefs" {
		t.Errorf("expected 'Coral reefs', got %q", pieces)
	}
	if gotPath != "/gemini-2.5-flash:streamGenerateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "alt=sse") {
		t.Errorf("expected alt=sse in query, got %q", gotQuery)
	}
}

func TestGoogleStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Partial\"}]}}]}\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "google", Model: "m", APIKey: "k", BaseURL: srv.URL})
	client := NewClient(p, ClientOptions{})
	stream, err := client.CompleteStreaming(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if len(pieces) != 1 || pieces[0] != "Partial" {
		t.Errorf("expected one 'Partial' piece, got %q", pieces)
	}
	var interrupted *StreamInterruptedError
	if !errors.As(err, &interrupted) {
		t.Fatalf("expected StreamInterruptedError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF in chain, got %v", err)
	}
}

func TestGoogleCompleteJSONMode(t *testing.T) {
	var body geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"concept\":\"x\"}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "google", Model: "m", APIKey: "k", BaseURL: srv.URL})
	out, err := NewClient(p, ClientOptions{}).CompleteStructured(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["concept"] != "x" {
		t.Errorf("expected concept 'x', got %v", out)
	}
	if body.GenerationConfig == nil || body.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("expected JSON response MIME type, got %+v", body.GenerationConfig)
	}
}

func TestGoogleStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "google", Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := NewClient(p, ClientOptions{}).CompleteStreaming(context.Background(), "hi")
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected ModelError, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestAnthropicStream(t *testing.T) {
	var req anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Heat\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\" stress\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "anthropic", Model: "claude", APIKey: "k", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(pieces, "") != "Heat stress" {
		t.Errorf("expected 'Heat stress', got %q", pieces)
	}
	if !req.Stream {
		t.Error("expected stream=true in request body")
	}
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"A\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "anthropic", Model: "claude", APIKey: "k", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if len(pieces) != 1 {
		t.Errorf("expected 1 piece before the error, got %q", pieces)
	}
	if err == nil || !strings.Contains(err.Error(), "Overloaded") {
		t.Errorf("expected overloaded error, got %v", err)
	}
}

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Sea"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" level"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`)
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "ollama", Model: "llama3", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(pieces, "") != "Sea level" {
		t.Errorf("expected 'Sea level', got %q", pieces)
	}
}

func TestOllamaStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Sea"},"done":false}`)
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "ollama", Model: "llama3", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = drain(t, stream)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Drought\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" risk\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "openai", Model: "gpt-4o", APIKey: "k", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(pieces, "") != "Drought risk" {
		t.Errorf("expected 'Drought risk', got %q", pieces)
	}
}

func TestOpenAIStreamTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Partial\"}}]}\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "openai", Model: "gpt-4o", APIKey: "k", BaseURL: srv.URL})
	stream, err := NewClient(p, ClientOptions{}).CompleteStreaming(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if len(pieces) != 1 || pieces[0] != "Partial" {
		t.Errorf("expected one 'Partial' piece, got %q", pieces)
	}
	var interrupted *StreamInterruptedError
	if !errors.As(err, &interrupted) {
		t.Fatalf("expected StreamInterruptedError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF in chain, got %v", err)
	}
}

func TestOpenAIStreamFinishWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Done\"},\"finish_reason\":\"stop\"}]}\n\n")
	}))
	defer srv.Close()

	p, _ := NewProvider(ProviderConfig{Type: "openai", Model: "gpt-4o", APIKey: "k", BaseURL: srv.URL})
	stream, err := p.Stream(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pieces, err := drain(t, stream)
	if err != nil {
		t.Fatalf("expected clean end after a finish reason, got %v", err)
	}
	if strings.Join(pieces, "") != "Done" {
		t.Errorf("expected 'Done', got %q", pieces)
	}
}
