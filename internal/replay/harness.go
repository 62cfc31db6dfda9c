// Package replay runs recorded conversations through the extractor and the
// update policy offline, without a model or a store.
package replay

import (
	"github.com/danielpatrickdp/afinia/internal/gate"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/signals"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// #region types
// Interaction is one recorded turn: what the user said and what the model
// answered, hidden block included.
type Interaction struct {
	TurnID       string
	Message      string
	ResponseText string
}

// ReplayConfig bundles the policy, gate, and marker settings for a run.
// The extractor mode always follows Update.Mode.
type ReplayConfig struct {
	UpdateConfig update.UpdateConfig
	GateConfig   gate.GateConfig
	Extractor    signals.ExtractorConfig
}

// DefaultReplayConfig returns the same defaults the server starts with.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		UpdateConfig: update.DefaultUpdateConfig(),
		GateConfig:   gate.DefaultGateConfig(),
		Extractor:    signals.DefaultExtractorConfig(),
	}
}

// ReplayResult captures the outcome of replaying one interaction.
type ReplayResult struct {
	TurnID string
	Action string // "commit" | "no_op"
	Reason string

	Visible   string
	Proposal  signals.Proposal
	Found     bool
	Malformed bool
	Dropped   []string

	// Changes holds every per-parameter outcome, applied or not.
	Changes []update.Change
	// State is the parameter set after this turn.
	State params.Set
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns int
	Commits    int
	NoOps      int
	Malformed  int
	FinalState params.Set
}

// #endregion types

// #region replay
// Replay feeds each interaction through extract, then apply, carrying the
// committed state forward. start is not modified.
func Replay(start params.Set, interactions []Interaction, config ReplayConfig) []ReplayResult {
	config.Extractor.Mode = config.UpdateConfig.Mode
	ex := signals.NewExtractor(config.Extractor)
	policy := update.NewPolicy(config.UpdateConfig, gate.NewGate(config.GateConfig))

	current := start.Clone()
	current.Complete(config.UpdateConfig.DefaultValue)
	results := make([]ReplayResult, 0, len(interactions))

	for _, inter := range interactions {
		x := ex.Extract(inter.ResponseText)
		res := policy.Apply(current, x.Proposal, inter.Message)

		if res.Changed {
			current = res.NewState
		}
		results = append(results, ReplayResult{
			TurnID:    inter.TurnID,
			Action:    res.Decision.Action,
			Reason:    res.Decision.Reason,
			Visible:   x.Visible,
			Proposal:  x.Proposal,
			Found:     x.Found,
			Malformed: x.Malformed,
			Dropped:   x.Dropped,
			Changes:   res.Changes,
			State:     current.Clone(),
		})
	}

	return results
}

// Summarize computes aggregate stats from replay results. finalState is
// reported as-is.
func Summarize(results []ReplayResult, finalState params.Set) ReplaySummary {
	s := ReplaySummary{
		TotalTurns: len(results),
		FinalState: finalState,
	}
	for _, r := range results {
		switch r.Action {
		case "commit":
			s.Commits++
		case "no_op":
			s.NoOps++
		}
		if r.Malformed {
			s.Malformed++
		}
	}
	return s
}

// FinalState returns the state after the last result, or start when there
// are no results.
func FinalState(start params.Set, results []ReplayResult) params.Set {
	if len(results) == 0 {
		return start.Clone()
	}
	return results[len(results)-1].State.Clone()
}

// #endregion replay
