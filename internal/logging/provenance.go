package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS turn_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	version_id    TEXT,
	proposal_json TEXT,
	changes_json  TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	malformed     INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_log_user ON turn_log(user_id, id);
`

// #endregion schema

// SQLRecorder writes turn entries to a SQLite database.
type SQLRecorder struct {
	db *sql.DB
}

// OpenRecorder opens (or creates) the provenance database at path.
func OpenRecorder(path string) (*SQLRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open provenance db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate provenance: %w", err)
	}
	return &SQLRecorder{db: db}, nil
}

// Close closes the database.
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

// #region record
// Record inserts one entry.
func (r *SQLRecorder) Record(ctx context.Context, entry TurnEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	malformed := 0
	if entry.Malformed {
		malformed = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO turn_log (turn_id, user_id, version_id, proposal_json, changes_json, decision, reason, malformed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TurnID,
		entry.UserID,
		nullIfEmpty(entry.VersionID),
		nullIfEmpty(entry.ProposalJSON),
		nullIfEmpty(entry.ChangesJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		malformed,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// #endregion record

// #region list
// ListTurns returns userID's most recent entries, newest first.
func (r *SQLRecorder) ListTurns(ctx context.Context, userID string, limit int) ([]TurnEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT turn_id, user_id, version_id, proposal_json, changes_json, decision, reason, malformed, created_at
		 FROM turn_log WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var version, proposal, changes, reason sql.NullString
		var malformed int
		var created string
		if err := rows.Scan(&e.TurnID, &e.UserID, &version, &proposal, &changes, &e.Decision, &reason, &malformed, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		e.VersionID = version.String
		e.ProposalJSON = proposal.String
		e.ChangesJSON = changes.String
		e.Reason = reason.String
		e.Malformed = malformed != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
