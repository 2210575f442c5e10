package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Stream opens a streaming completion. The returned error covers only
	// establishing the stream; failures after that surface from Recv.
	Stream(ctx context.Context, req CompletionRequest) (Stream, error)
	// Name returns the name of this provider.
	Name() string
}
