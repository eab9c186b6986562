package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"

	"caselens-backend/config"
)

// Pool is the set of configured backends plus the clients that must be closed on shutdown
type Pool struct {
	*Registry
	gemini *genai.Client
}

// NewPoolFromConfig builds every backend that has credentials. Each backend gets its own
// limiter so a slow provider does not pace the others.
func NewPoolFromConfig(ctx context.Context, cfg config.ModelsConfig, logger *log.Logger) (*Pool, error) {
	if logger == nil {
		logger = log.Default()
	}
	policy := RetryPolicy{MaxAttempts: cfg.MaxRetries, InitialBackoff: cfg.InitialBackoff}
	wrap := func(b Backend) Backend {
		var limiter *rate.Limiter
		if cfg.MinInterval > 0 {
			limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
		}
		return WithResilience(b, policy, limiter, logger)
	}

	pool := &Pool{}
	var backends []Backend

	if cfg.Gemini.APIKey != "" {
		client, err := NewGeminiClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		pool.gemini = client
		backends = append(backends, wrap(NewGeminiBackend(client, cfg.Gemini.Model, logger)))
	}

	compatible := []struct {
		name     string
		settings config.ModelSettings
	}{
		{config.BackendOpenAI, cfg.OpenAI},
		{config.BackendDeepSeek, cfg.DeepSeek},
		{config.BackendQwen, cfg.Qwen},
	}
	for _, c := range compatible {
		if c.settings.APIKey == "" {
			continue
		}
		backend, err := NewOpenAIBackend(OpenAIOptions{
			Name:    c.name,
			APIKey:  c.settings.APIKey,
			BaseURL: c.settings.BaseURL,
			Model:   c.settings.Model,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		backends = append(backends, wrap(backend))
	}

	registry, err := NewRegistry(cfg.Primary, backends...)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("model backends: %w", err)
	}
	pool.Registry = registry
	logger.Printf("Model backends configured: %v (primary: %q)", registry.Names(), registry.PrimaryName())
	return pool, nil
}

// Close releases the underlying clients
func (p *Pool) Close() {
	if p == nil || p.gemini == nil {
		return
	}
	if err := p.gemini.Close(); err != nil {
		log.Printf("Warning: failed to close gemini client: %v", err)
	}
}
