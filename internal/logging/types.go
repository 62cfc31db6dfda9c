package logging

import (
	"context"
	"time"
)

// #region decisions
// Turn decisions recorded in the provenance log.
const (
	DecisionCommit     = "commit"
	DecisionNoOp       = "no_op"
	DecisionSaveFailed = "save_failed"
)

// #endregion decisions

// #region turn-entry
// TurnEntry is one row of the per-turn provenance log.
type TurnEntry struct {
	TurnID       string
	UserID       string
	VersionID    string
	ProposalJSON string
	ChangesJSON  string
	Decision     string
	Reason       string
	Malformed    bool
	CreatedAt    time.Time
}

// #endregion turn-entry

// Recorder persists turn entries.
type Recorder interface {
	Record(ctx context.Context, entry TurnEntry) error
	Close() error
}

// NopRecorder discards entries.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, TurnEntry) error { return nil }
func (NopRecorder) Close() error                            { return nil }
