package state

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region errors
var (
	// ErrSaveFailed wraps any failure to persist a parameter set.
	ErrSaveFailed = errors.New("could not save parameters")
	// ErrInvalidUser is returned for ids that sanitize to nothing.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrConflict is returned by CompareAndSwap when the stored version moved.
	ErrConflict = errors.New("parameter version conflict")
	// ErrVersionNotFound is returned by Rollback for unknown versions.
	ErrVersionNotFound = errors.New("version not found")
)

// #endregion errors

// #region store-interface
// Store persists one parameter set per user. Load never fails: missing or
// unreadable state yields a complete default set and is logged.
type Store interface {
	Load(ctx context.Context, userID string) params.Set
	Save(ctx context.Context, userID string, set params.Set) error
	Close() error
}

// VersionedStore adds optimistic concurrency. The empty version means "no
// stored state yet".
type VersionedStore interface {
	Store
	LoadVersion(ctx context.Context, userID string) (params.Set, string)
	CompareAndSwap(ctx context.Context, userID, expected string, set params.Set) (string, error)
}

// HistoryStore exposes the version history kept by the SQLite backend.
type HistoryStore interface {
	ListVersions(ctx context.Context, userID string, limit int) ([]Version, error)
	Rollback(ctx context.Context, userID, versionID string) error
}

// #endregion store-interface

// #region version
// Version is one stored snapshot of a user's parameters.
type Version struct {
	VersionID string
	ParentID  string
	UserID    string
	Params    params.Set
	CreatedAt time.Time
}

// #endregion version

// #region config
// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend      string `mapstructure:"backend" toml:"backend"`
	Dir          string `mapstructure:"dir" toml:"dir"`   // file backend
	Path         string `mapstructure:"path" toml:"path"` // sqlite backend
	URL          string `mapstructure:"url" toml:"url"`   // postgres backend
	DefaultValue int    `mapstructure:"-" toml:"-"`
}

// #endregion config
