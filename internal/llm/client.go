package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ClientOptions are the fixed generation parameters a Client sends with
// every call.
type ClientOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client issues single-prompt calls against a Provider: one blocking call
// that returns a parsed JSON object, and one streaming call. It performs no
// retries and keeps no state between calls.
type Client struct {
	provider Provider
	opts     ClientOptions
}

// NewClient creates a Client over provider.
func NewClient(provider Provider, opts ClientOptions) *Client {
	return &Client{provider: provider, opts: opts}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

func (c *Client) request(prompt string, jsonMode bool) CompletionRequest {
	return CompletionRequest{
		Model:       c.opts.Model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		JSONMode:    jsonMode,
	}
}

// CompleteStructured sends prompt in JSON mode and parses the reply as a
// single JSON object. Backend failures are returned as *ModelError, bodies
// that are not a JSON object as *MalformedResponseError.
func (c *Client) CompleteStructured(ctx context.Context, prompt string) (map[string]any, error) {
	resp, err := c.provider.Complete(ctx, c.request(prompt, true))
	if err != nil {
		return nil, &ModelError{Provider: c.provider.Name(), Op: "completion", Err: err}
	}
	return ParseStructured(resp.Content)
}

// CompleteStreaming opens a streaming completion for prompt. A failure to
// establish the stream is returned as *ModelError; failures after that are
// reported by Recv as *StreamInterruptedError.
func (c *Client) CompleteStreaming(ctx context.Context, prompt string) (Stream, error) {
	stream, err := c.provider.Stream(ctx, c.request(prompt, false))
	if err != nil {
		return nil, &ModelError{Provider: c.provider.Name(), Op: "stream", Err: err}
	}
	return &clientStream{inner: stream}, nil
}

type clientStream struct {
	inner Stream
	err   error
}

func (s *clientStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		text, err := s.inner.Recv()
		if errors.Is(err, io.EOF) {
			s.err = io.EOF
			return "", io.EOF
		}
		if err != nil {
			s.err = &StreamInterruptedError{Err: err}
			return "", s.err
		}
		if text != "" {
			return text, nil
		}
	}
}

func (s *clientStream) Close() error {
	return s.inner.Close()
}

// StripCodeFence removes an optional Markdown code fence around a model
// reply: a leading ```json or ``` line and a trailing ```.
func StripCodeFence(content string) string {
	text := strings.TrimSpace(content)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	default:
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ParseStructured parses a model reply as one JSON object after stripping
// any code fence.
func ParseStructured(content string) (map[string]any, error) {
	body := StripCodeFence(content)
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, &MalformedResponseError{Body: content, Err: err}
	}
	if out == nil {
		return nil, &MalformedResponseError{Body: content, Err: fmt.Errorf("expected a JSON object, got %q", body)}
	}
	return out, nil
}
