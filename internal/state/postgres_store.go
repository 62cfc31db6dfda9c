package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/params"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS afinia_parameters (
	user_id    TEXT PRIMARY KEY,
	params     JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps one JSONB row per user with a monotonically
// increasing version column used for compare-and-swap.
type PostgresStore struct {
	pool   *pgxpool.Pool
	def    int
	logger *zap.Logger
}

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, url string, defaultValue int, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, def: defaultValue, logger: logger}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Load returns the stored set or defaults.
func (s *PostgresStore) Load(ctx context.Context, userID string) params.Set {
	set, _ := s.LoadVersion(ctx, userID)
	return set
}

// LoadVersion returns the stored set with its version, or defaults and "".
func (s *PostgresStore) LoadVersion(ctx context.Context, userID string) (params.Set, string) {
	id, err := ValidUserID(userID)
	if err != nil {
		return params.Defaults(s.def), ""
	}

	var raw []byte
	var version int64
	err = s.pool.QueryRow(ctx,
		`SELECT params, version FROM afinia_parameters WHERE user_id = $1`, id,
	).Scan(&raw, &version)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("load parameters", zap.String("user", id), zap.Error(err))
		}
		return params.Defaults(s.def), ""
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		s.logger.Warn("corrupt parameters row, using defaults", zap.String("user", id), zap.Error(err))
		return params.Defaults(s.def), strconv.FormatInt(version, 10)
	}
	set, _ := params.FromMap(m, s.def)
	return set, strconv.FormatInt(version, 10)
}

// Save upserts unconditionally and bumps the version.
func (s *PostgresStore) Save(ctx context.Context, userID string, set params.Set) error {
	id, doc, err := s.prepare(userID, set)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO afinia_parameters (user_id, params) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET params = EXCLUDED.params, version = afinia_parameters.version + 1, updated_at = now()`,
		id, doc,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert: %w", ErrSaveFailed, err)
	}
	return nil
}

// CompareAndSwap writes only when the stored version equals expected. An
// empty expected version requires that no row exists yet.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, userID, expected string, set params.Set) (string, error) {
	id, doc, err := s.prepare(userID, set)
	if err != nil {
		return "", err
	}

	var version int64
	if expected == "" {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO afinia_parameters (user_id, params) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO NOTHING
			 RETURNING version`, id, doc,
		).Scan(&version)
	} else {
		want, perr := strconv.ParseInt(expected, 10, 64)
		if perr != nil {
			return "", fmt.Errorf("%w: bad version %q", ErrConflict, expected)
		}
		err = s.pool.QueryRow(ctx,
			`UPDATE afinia_parameters
			 SET params = $2, version = version + 1, updated_at = now()
			 WHERE user_id = $1 AND version = $3
			 RETURNING version`, id, doc, want,
		).Scan(&version)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: user %s moved past %q", ErrConflict, id, expected)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (s *PostgresStore) prepare(userID string, set params.Set) (string, string, error) {
	id, err := ValidUserID(userID)
	if err != nil {
		return "", "", err
	}
	out := set.Clone()
	out.Complete(s.def)
	b, err := json.Marshal(out)
	if err != nil {
		return "", "", fmt.Errorf("%w: marshal: %w", ErrSaveFailed, err)
	}
	return id, string(b), nil
}
