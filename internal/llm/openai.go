package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL keeps
// the library default.
func NewOpenAIProvider(apiKey string, model string, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return completeOpenAI(ctx, p.client, p.model, req)
}

func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	return streamOpenAI(ctx, p.client, p.model, req)
}

// chatCompletionRequest converts a CompletionRequest into the go-openai
// request shape shared by every OpenAI-compatible backend.
func chatCompletionRequest(defaultModel string, req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var messages []openai.ChatCompletionMessage
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return apiReq
}

func completeOpenAI(ctx context.Context, client *openai.Client, defaultModel string, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := client.CreateChatCompletion(ctx, chatCompletionRequest(defaultModel, req))
	if err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	var finishReason string
	if len(resp.Choices) > 0 {
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
		FinishReason: finishReason,
	}, nil
}

func streamOpenAI(ctx context.Context, client *openai.Client, defaultModel string, req CompletionRequest) (Stream, error) {
	apiReq := chatCompletionRequest(defaultModel, req)
	apiReq.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream   *openai.ChatCompletionStream
	finished bool
	closed   bool
}

// Recv returns the next content delta. go-openai reports io.EOF both after
// [DONE] and when the body is cut off, so an end without a finish reason
// is treated as truncation.
func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			if !s.finished {
				return "", fmt.Errorf("openai stream ended without a finish reason: %w", io.ErrUnexpectedEOF)
			}
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		for _, choice := range resp.Choices {
			if choice.FinishReason != "" {
				s.finished = true
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openAIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.Close()
}
