package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS parameter_versions (
	version_id    TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	parent_id     TEXT,
	params_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES parameter_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_parameter_versions_user
	ON parameter_versions(user_id, created_at);

CREATE TABLE IF NOT EXISTS active_parameters (
	user_id       TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES parameter_versions(version_id)
);
`

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// SQLiteStore keeps every saved set as an immutable version and moves a
// per-user active pointer, so earlier states can be listed and restored.
type SQLiteStore struct {
	db     *sql.DB
	def    int
	logger *zap.Logger
}

// #endregion store-struct

// #region constructor
// NewSQLiteStore opens a SQLite database and runs migrations.
func NewSQLiteStore(dbPath string, defaultValue int, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: db, def: defaultValue, logger: logger}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// #region load
// Load returns the active set for userID, or defaults.
func (s *SQLiteStore) Load(ctx context.Context, userID string) params.Set {
	set, _ := s.LoadVersion(ctx, userID)
	return set
}

// LoadVersion returns the active set and its version id. A user with no
// stored state gets defaults and the empty version.
func (s *SQLiteStore) LoadVersion(ctx context.Context, userID string) (params.Set, string) {
	id, err := ValidUserID(userID)
	if err != nil {
		return params.Defaults(s.def), ""
	}

	var versionID, paramsJSON string
	err = s.db.QueryRowContext(ctx,
		`SELECT v.version_id, v.params_json
		 FROM active_parameters a
		 JOIN parameter_versions v ON v.version_id = a.version_id
		 WHERE a.user_id = ?`, id,
	).Scan(&versionID, &paramsJSON)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("load parameters", zap.String("user", id), zap.Error(err))
		}
		return params.Defaults(s.def), ""
	}

	set, err := s.decode(paramsJSON)
	if err != nil {
		s.logger.Warn("corrupt parameters row, using defaults",
			zap.String("user", id), zap.String("version", versionID), zap.Error(err))
		return params.Defaults(s.def), versionID
	}
	return set, versionID
}

// #endregion load

// #region save
// Save commits a new version on top of whatever is active.
func (s *SQLiteStore) Save(ctx context.Context, userID string, set params.Set) error {
	_, err := s.commit(ctx, userID, set, nil)
	return err
}

// CompareAndSwap commits only if the active version still equals expected.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, userID, expected string, set params.Set) (string, error) {
	return s.commit(ctx, userID, set, &expected)
}

func (s *SQLiteStore) commit(ctx context.Context, userID string, set params.Set, expected *string) (string, error) {
	id, err := ValidUserID(userID)
	if err != nil {
		return "", err
	}
	out := set.Clone()
	out.Complete(s.def)
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: marshal: %w", ErrSaveFailed, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin tx: %w", ErrSaveFailed, err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_parameters WHERE user_id = ?`, id,
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: get active: %w", ErrSaveFailed, err)
	}
	if expected != nil && parent.String != *expected {
		return "", fmt.Errorf("%w: user %s at %q, expected %q", ErrConflict, id, parent.String, *expected)
	}

	versionID := uuid.New().String()
	var parentArg any
	if parent.Valid && parent.String != "" {
		parentArg = parent.String
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO parameter_versions (version_id, user_id, parent_id, params_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		versionID, id, parentArg, string(b), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert version: %w", ErrSaveFailed, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_parameters (user_id, version_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET version_id = excluded.version_id`,
		id, versionID,
	)
	if err != nil {
		return "", fmt.Errorf("%w: set active: %w", ErrSaveFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit: %w", ErrSaveFailed, err)
	}
	return versionID, nil
}

// #endregion save

// #region rollback
// Rollback points userID's active set at an earlier version of their own.
func (s *SQLiteStore) Rollback(ctx context.Context, userID, versionID string) error {
	id, err := ValidUserID(userID)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parameter_versions WHERE version_id = ? AND user_id = ?`,
		versionID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_parameters (user_id, version_id) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET version_id = excluded.version_id`,
		id, versionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns userID's versions newest first.
func (s *SQLiteStore) ListVersions(ctx context.Context, userID string, limit int) ([]Version, error) {
	id, err := ValidUserID(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id, params_json, created_at
		 FROM parameter_versions WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, id, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var parentID sql.NullString
		var paramsJSON, createdStr string
		if err := rows.Scan(&v.VersionID, &parentID, &paramsJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.UserID = id
		v.ParentID = parentID.String
		if v.Params, err = s.decode(paramsJSON); err != nil {
			return nil, fmt.Errorf("decode version %s: %w", v.VersionID, err)
		}
		v.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, v)
	}
	return out, rows.Err()
}

// #endregion list-versions

func (s *SQLiteStore) decode(paramsJSON string) (params.Set, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &raw); err != nil {
		return nil, err
	}
	set, _ := params.FromMap(raw, s.def)
	return set, nil
}
