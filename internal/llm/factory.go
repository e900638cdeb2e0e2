package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sanjeevni-ai/sanjeevni/internal/config"
)

// New builds the single active backend described by cfg, wrapped in a
// per-call timeout and a circuit breaker when those are configured.
func New(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		client Client
		err    error
	)
	switch cfg.Name {
	case config.ProviderOllama:
		client = NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.MaxTokens, nil, logger)
	case config.ProviderAnthropic:
		client = NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, logger)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, logger)
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens, logger)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout.Duration > 0 {
		client = &timeoutClient{Client: client, timeout: cfg.Timeout.Duration}
	}
	if cfg.BreakerFailures > 0 {
		client = NewBreaker(client, cfg.BreakerFailures, cfg.BreakerCooldown.Duration, logger)
	}

	logger.Info("model backend ready", "provider", client.Provider(), "model", client.Model())
	return client, nil
}

// timeoutClient bounds each Complete call.
type timeoutClient struct {
	Client
	timeout time.Duration
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.Client.Complete(ctx, req)
}
