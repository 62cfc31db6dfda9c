// Package codec talks to the hosted language model. The rest of the module
// only sees Client; provider SDKs stay behind it.
package codec

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// #region types
// Roles accepted in Request.Messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry.
type Message struct {
	Role    string
	Content string
}

// Request is a single chat completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response holds the completion text and the model that produced it.
type Response struct {
	Text  string
	Model string
}

// Client generates one completion per call.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Close() error
}

// ErrNoCompletion is returned when the provider answered without any choice.
var ErrNoCompletion = errors.New("model returned no completion")

// #endregion types

// #region config
// Providers accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider    string        `mapstructure:"provider" toml:"provider"`
	Model       string        `mapstructure:"model" toml:"model"`
	APIKey      string        `mapstructure:"api_key" toml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" toml:"base_url"`
	Temperature float64       `mapstructure:"temperature" toml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" toml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// DefaultConfig matches the generation settings the service was tuned with.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.6,
		MaxTokens:   220,
		Timeout:     30 * time.Second,
	}
}

// #endregion config

// #region constructor
// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Provider)
	}
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// #endregion constructor
