package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiBackend calls Gemini through the generative-ai-go client
type GeminiBackend struct {
	name        string
	client      *genai.Client
	model       string
	temperature float32
	logger      *log.Logger
}

// NewGeminiClient creates the shared Gemini client
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiBackend wraps a Gemini client as a Backend
func NewGeminiBackend(client *genai.Client, model string, logger *log.Logger) *GeminiBackend {
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GeminiBackend{
		name:        "gemini",
		client:      client,
		model:       model,
		temperature: 0.2,
		logger:      logger,
	}
}

// Name implements Backend
func (b *GeminiBackend) Name() string {
	return b.name
}

// Invoke implements Backend
func (b *GeminiBackend) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	// GenerativeModel carries per-call settings, so build one per request.
	model := b.client.GenerativeModel(b.model)
	model.SetTemperature(b.temperature)
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			b.logger.Printf("Warning: gemini candidate %d finished with reason: %s", i, candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		// Only the first candidate with content is used.
		if text.Len() > 0 {
			break
		}
	}

	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

var _ Backend = (*GeminiBackend)(nil)
