package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region fixture-types
// Fixture is the on-disk JSON form of a recorded conversation.
type Fixture struct {
	Description string               `json:"description"`
	Start       map[string]any       `json:"start,omitempty"`
	Config      FixtureConfig        `json:"config"`
	Turns       []FixtureInteraction `json:"turns"`
	Expected    FixtureExpected      `json:"expected"`
}

// FixtureInteraction mirrors Interaction with JSON tags.
type FixtureInteraction struct {
	TurnID       string `json:"turn_id"`
	Message      string `json:"message"`
	ResponseText string `json:"response_text"`
}

// FixtureConfig overrides the replay defaults. Update is decoded over the
// default policy so a fixture only names the knobs it changes.
type FixtureConfig struct {
	Update json.RawMessage    `json:"update,omitempty"`
	Gate   *FixtureGateConfig `json:"gate,omitempty"`
	Open   string             `json:"open_marker,omitempty"`
	Close  string             `json:"close_marker,omitempty"`
}

// FixtureGateConfig mirrors gate.GateConfig. A nil Keywords map keeps the
// default lexicon.
type FixtureGateConfig struct {
	RequireEvidence bool                `json:"require_evidence"`
	Keywords        map[string][]string `json:"keywords,omitempty"`
}

// FixtureExpected lists optional expectations checked after a run.
type FixtureExpected struct {
	Actions []FixtureExpectedResult `json:"actions,omitempty"`
	Final   map[string]int          `json:"final,omitempty"`
}

// FixtureExpectedResult is the expected action for one turn.
type FixtureExpectedResult struct {
	TurnID string `json:"turn_id"`
	Action string `json:"action"`
}

// Mismatch is one failed expectation.
type Mismatch struct {
	Subject string // turn id or parameter name
	Want    string
	Got     string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: want %s, got %s", m.Subject, m.Want, m.Got)
}

// #endregion fixture-types

// #region fixture-load
// LoadFixture reads and decodes a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	for i, t := range f.Turns {
		if t.TurnID == "" {
			f.Turns[i].TurnID = fmt.Sprintf("turn-%d", i+1)
		}
	}
	return &f, nil
}

// #endregion fixture-load

// #region fixture-convert
// ToReplayConfig overlays the fixture overrides on DefaultReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() (ReplayConfig, error) {
	cfg := DefaultReplayConfig()
	if len(fc.Update) > 0 {
		if err := json.Unmarshal(fc.Update, &cfg.UpdateConfig); err != nil {
			return cfg, fmt.Errorf("decode update override: %w", err)
		}
	}
	if fc.Gate != nil {
		cfg.GateConfig.RequireEvidence = fc.Gate.RequireEvidence
		if fc.Gate.Keywords != nil {
			cfg.GateConfig.Keywords = fc.Gate.Keywords
		}
	}
	if fc.Open != "" {
		cfg.Extractor.Open = fc.Open
	}
	if fc.Close != "" {
		cfg.Extractor.Close = fc.Close
	}
	return cfg, nil
}

// StartState builds the complete starting set. Unrecognized keys are returned
// in dropped.
func (f *Fixture) StartState(def int) (params.Set, []string) {
	return params.FromMap(f.Start, def)
}

// ToInteraction converts a fixture turn to a domain Interaction.
func (fi *FixtureInteraction) ToInteraction() Interaction {
	return Interaction{
		TurnID:       fi.TurnID,
		Message:      fi.Message,
		ResponseText: fi.ResponseText,
	}
}

// Interactions converts every fixture turn.
func (f *Fixture) Interactions() []Interaction {
	out := make([]Interaction, len(f.Turns))
	for i := range f.Turns {
		out[i] = f.Turns[i].ToInteraction()
	}
	return out
}

// #endregion fixture-convert

// #region fixture-run
// Run replays the fixture with its own config and start state.
func Run(f *Fixture) ([]ReplayResult, ReplaySummary, error) {
	cfg, err := f.Config.ToReplayConfig()
	if err != nil {
		return nil, ReplaySummary{}, err
	}
	start, _ := f.StartState(cfg.UpdateConfig.DefaultValue)
	results := Replay(start, f.Interactions(), cfg)
	return results, Summarize(results, FinalState(start, results)), nil
}

// Check compares results against the fixture expectations. Expected final
// keys may use any spelling params.Lookup accepts.
func (f *Fixture) Check(results []ReplayResult, final params.Set) []Mismatch {
	var out []Mismatch

	byTurn := make(map[string]ReplayResult, len(results))
	for _, r := range results {
		byTurn[r.TurnID] = r
	}
	for _, want := range f.Expected.Actions {
		got, ok := byTurn[want.TurnID]
		switch {
		case !ok:
			out = append(out, Mismatch{Subject: want.TurnID, Want: want.Action, Got: "missing"})
		case got.Action != want.Action:
			out = append(out, Mismatch{Subject: want.TurnID, Want: want.Action, Got: got.Action})
		}
	}

	keys := make([]string, 0, len(f.Expected.Final))
	for k := range f.Expected.Final {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := f.Expected.Final[k]
		name, ok := params.Lookup(k)
		if !ok {
			out = append(out, Mismatch{Subject: k, Want: fmt.Sprint(want), Got: "unknown parameter"})
			continue
		}
		if got := final[name]; got != want {
			out = append(out, Mismatch{Subject: name, Want: fmt.Sprint(want), Got: fmt.Sprint(got)})
		}
	}
	return out
}

// #endregion fixture-run
