package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend calls any OpenAI-compatible chat completion endpoint
// (OpenAI itself, DeepSeek, Qwen compatible mode).
type OpenAIBackend struct {
	name   string
	client *openai.Client
	model  string
}

// OpenAIOptions configures an OpenAI-compatible backend
type OpenAIOptions struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIBackend creates an OpenAI-compatible backend
func NewOpenAIBackend(opts OpenAIOptions) (*OpenAIBackend, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s backend selected but API key not set", opts.Name)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%s backend requires a model name", opts.Name)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	return &OpenAIBackend{
		name:   opts.Name,
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}, nil
}

// Name implements Backend
func (b *OpenAIBackend) Name() string {
	return b.name
}

// Invoke implements Backend
func (b *OpenAIBackend) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: 0.2,
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", b.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion returned no choices", b.name)
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

var _ Backend = (*OpenAIBackend)(nil)
