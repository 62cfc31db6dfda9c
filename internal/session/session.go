// Package session keeps the short rolling conversation history sent back to
// the model on each turn.
package session

import "time"

// Roles used in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one user's conversation.
type Session struct {
	UserID   string
	History  []Message
	Turns    int
	LastSeen time.Time
}

// Store abstracts where sessions live. Implementations must be safe for
// concurrent use; Get returns a copy.
type Store interface {
	Get(userID string) Session
	Put(s Session)
	Append(userID string, msgs ...Message) Session
	Evict(userID string)
	Close() error
}

// Config controls the in-memory store.
type Config struct {
	TTL             time.Duration `mapstructure:"ttl" toml:"ttl"`
	MaxMessages     int           `mapstructure:"max_messages" toml:"max_messages"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" toml:"janitor_interval"`
}

// DefaultConfig keeps the last 8 messages for 30 idle minutes.
func DefaultConfig() Config {
	return Config{
		TTL:             30 * time.Minute,
		MaxMessages:     8,
		JanitorInterval: time.Minute,
	}
}
