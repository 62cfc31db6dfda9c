package orchestrator

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// #region errors

var (
	// ErrEmptyMessage rejects blank user input before the model is called.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrModelUnavailable covers transport failures, non-success statuses and timeouts.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrEmptyCompletion means the model answered with no visible text.
	ErrEmptyCompletion = errors.New("model returned no usable text")
)

// #endregion errors

// #region config

// Config holds generation settings for each turn.
type Config struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Greeting is sent as the first assistant message of a fresh session.
	Greeting string
}

// DefaultConfig returns the tuned generation settings.
func DefaultConfig() Config {
	return Config{
		Temperature: 0.6,
		MaxTokens:   220,
		Timeout:     30 * time.Second,
		Greeting:    DefaultGreeting,
	}
}

// #endregion config

// #region turn

// TurnRequest is one inbound chat message.
type TurnRequest struct {
	UserID  string
	Message string
}

// TurnResult is what the caller shows and returns. On a save failure Reply
// is still set and Parameters holds the last persisted values.
type TurnResult struct {
	TurnID     string
	UserID     string
	Reply      string
	Parameters params.Set
	Changes    []update.Change
	Changed    bool
	Saved      bool
	Malformed  bool
	VersionID  string
}

// #endregion turn
