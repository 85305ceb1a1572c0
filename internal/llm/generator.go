package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderVertexAI = "vertexai"
	ProviderGemini   = "gemini"
	ProviderNone     = "none"
)

// ErrDisabled is returned by New when no provider is configured.
var ErrDisabled = errors.New("llm provider disabled")

// ErrRateLimited marks a provider error as a rate-limit rejection.
var ErrRateLimited = errors.New("llm rate limited")

// Generator produces a text completion for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
	Close() error
}

// Config selects and tunes the LLM backend.
type Config struct {
	Provider        string        `mapstructure:"provider"`
	ProjectID       string        `mapstructure:"project-id"`
	Location        string        `mapstructure:"location"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"-"`
	APIKeyFile      string        `mapstructure:"api-key-file"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max-output-tokens"`
	RequestDelay    time.Duration `mapstructure:"request-delay"`
	MaxRetries      int           `mapstructure:"max-retries"`
	RetryBackoff    time.Duration `mapstructure:"retry-backoff"`
}

// DefaultConfig returns the Vertex AI defaults.
func DefaultConfig() Config {
	return Config{
		Provider:        ProviderNone,
		Location:        "us-central1",
		Model:           defaultVertexModel,
		Temperature:     0.2,
		MaxOutputTokens: 2048,
		RequestDelay:    requestDelay,
		MaxRetries:      maxRetries,
		RetryBackoff:    retryBackoff,
	}
}

// New builds the configured generator wrapped in request pacing and retries.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	var (
		gen Generator
		err error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderVertexAI:
		gen, err = NewVertexAIClient(ctx, cfg)
	case ProviderGemini:
		gen, err = NewGeminiClient(ctx, cfg)
	case "", ProviderNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewLimited(gen, cfg, logger), nil
}
