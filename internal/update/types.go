package update

import "github.com/danielpatrickdp/afinia/internal/params"

// #region mode
// Mode selects how proposal values are read.
type Mode string

const (
	ModeAbsolute Mode = "absolute" // value is the proposed target in [0,100]
	ModeDelta    Mode = "delta"    // value is a signed offset from the current value
)

// #endregion mode

// #region update-config
// UpdateConfig holds the smoothing and capping knobs of the policy.
type UpdateConfig struct {
	// Factor is the EMA weight given to the proposal (default 0.2).
	Factor float64 `mapstructure:"factor" toml:"factor" json:"factor"`
	// RisingLowFactor replaces Factor when rising from below LowWatermark.
	RisingLowFactor float64 `mapstructure:"rising_low_factor" toml:"rising_low_factor" json:"rising_low_factor"`
	// RisingHighFactor replaces Factor when rising from HighWatermark or above.
	RisingHighFactor float64 `mapstructure:"rising_high_factor" toml:"rising_high_factor" json:"rising_high_factor"`
	LowWatermark     int     `mapstructure:"low_watermark" toml:"low_watermark" json:"low_watermark"`
	HighWatermark    int     `mapstructure:"high_watermark" toml:"high_watermark" json:"high_watermark"`

	// Per-turn caps. 0 freezes that direction.
	MaxStepUp   int `mapstructure:"max_step_up" toml:"max_step_up" json:"max_step_up"`
	MaxStepDown int `mapstructure:"max_step_down" toml:"max_step_down" json:"max_step_down"`

	// MinDelta ignores proposals with |n-a| below it (0 = off).
	MinDelta int `mapstructure:"min_delta" toml:"min_delta" json:"min_delta"`
	// MaxUpdatesPerTurn keeps the top N proposals by |n-a| (0 = unlimited).
	MaxUpdatesPerTurn int  `mapstructure:"max_updates_per_turn" toml:"max_updates_per_turn" json:"max_updates_per_turn"`
	Mode              Mode `mapstructure:"mode" toml:"mode" json:"mode"`
	DefaultValue      int  `mapstructure:"default_value" toml:"default_value" json:"default_value"`
}

// DefaultUpdateConfig returns the tuned defaults.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Factor:            0.2,
		RisingLowFactor:   0.35,
		RisingHighFactor:  0.1,
		LowWatermark:      30,
		HighWatermark:     70,
		MaxStepUp:         10,
		MaxStepDown:       5,
		MinDelta:          0,
		MaxUpdatesPerTurn: 0,
		Mode:              ModeAbsolute,
		DefaultValue:      params.DefaultValue,
	}
}

// #endregion update-config

// #region outcome
// Outcome classifies what happened to one proposal.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeNoOp           Outcome = "no_op"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeNoEvidence     Outcome = "no_evidence"
	OutcomeOverLimit      Outcome = "over_limit"
	OutcomeOverallIgnored Outcome = "overall_ignored"
)

// Change records the handling of a single parameter this turn.
type Change struct {
	Name     string  `json:"name"`
	From     int     `json:"from"`
	To       int     `json:"to"`
	Target   int     `json:"target"`
	Outcome  Outcome `json:"outcome"`
	Evidence string  `json:"evidence,omitempty"`
}

// #endregion outcome

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region update-result
// UpdateResult bundles everything returned by Apply.
type UpdateResult struct {
	NewState params.Set
	Changes  []Change
	Changed  bool
	Decision Decision
}

// Applied returns only the changes that moved a value.
func (r UpdateResult) Applied() []Change {
	var out []Change
	for _, c := range r.Changes {
		if c.Outcome == OutcomeApplied {
			out = append(out, c)
		}
	}
	return out
}

// #endregion update-result
