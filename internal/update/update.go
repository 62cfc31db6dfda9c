// Package update implements the smoothing policy that turns a model's
// proposed parameter values into bounded, damped updates.
package update

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/afinia/internal/gate"
	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region policy
// Policy applies proposals to a parameter set. It is safe for concurrent use.
type Policy struct {
	config UpdateConfig
	gate   *gate.Gate
}

// NewPolicy creates a policy. g may be nil, which disables evidence gating.
func NewPolicy(config UpdateConfig, g *gate.Gate) *Policy {
	if g == nil {
		g = gate.NewGate(gate.GateConfig{})
	}
	return &Policy{config: config, gate: g}
}

// Config returns the active configuration.
func (p *Policy) Config() UpdateConfig {
	return p.config
}

// #endregion policy

// #region blend
// Blend moves current toward proposed by an exponentially weighted step,
// then caps the step. Both inputs are clamped to [0,100] first.
func (p *Policy) Blend(current, proposed int) int {
	a := params.Clamp(current)
	n := params.Clamp(proposed)
	if a == n {
		return a
	}

	f := p.factor(a, n)
	ema := int(math.Round(float64(a)*(1-f) + float64(n)*f))

	if ema > a {
		return min(ema, a+max(p.config.MaxStepUp, 0))
	}
	return max(ema, a-max(p.config.MaxStepDown, 0))
}

// factor is smaller when a is already high and rising, larger when a is low
// and rising. Falling values always use the base factor.
func (p *Policy) factor(a, n int) float64 {
	f := p.config.Factor
	if n > a {
		switch {
		case a < p.config.LowWatermark && p.config.RisingLowFactor > 0:
			f = p.config.RisingLowFactor
		case a >= p.config.HighWatermark && p.config.RisingHighFactor > 0:
			f = p.config.RisingHighFactor
		}
	}
	return math.Max(0, math.Min(1, f))
}

// #endregion blend

// #region apply
// Apply computes the next parameter set from old, a proposal keyed by
// canonical parameter name, and the user message that triggered it. old is
// not modified. The overall level is recomputed from the trait mean on every
// call, but only a trait that moved makes the result Changed.
func (p *Policy) Apply(old params.Set, proposal map[string]int, message string) UpdateResult {
	next := old.Clone()
	next.Complete(p.config.DefaultValue)

	type candidate struct {
		name   string
		target int
		delta  int
		order  int
	}

	changes := make([]Change, 0, len(proposal)+1)
	var eligible []candidate

	for i, name := range params.All {
		v, ok := proposal[name]
		if !ok {
			continue
		}
		a := next[name]
		if name == params.Overall {
			changes = append(changes, Change{Name: name, From: a, To: a, Target: params.Clamp(v), Outcome: OutcomeOverallIgnored})
			continue
		}

		target := p.target(a, v)
		delta := abs(target - a)
		c := Change{Name: name, From: a, To: a, Target: target}

		switch {
		case delta == 0:
			c.Outcome = OutcomeNoOp
		case p.config.MinDelta > 0 && delta < p.config.MinDelta:
			c.Outcome = OutcomeBelowThreshold
		default:
			d := p.gate.Evaluate(name, message)
			if d.Vetoed {
				c.Outcome = OutcomeNoEvidence
				break
			}
			c.Evidence = d.Matched
			eligible = append(eligible, candidate{name: name, target: target, delta: delta, order: i})
			continue
		}
		changes = append(changes, c)
	}

	if n := p.config.MaxUpdatesPerTurn; n > 0 && len(eligible) > n {
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].delta > eligible[j].delta
		})
		for _, c := range eligible[n:] {
			a := next[c.name]
			changes = append(changes, Change{Name: c.name, From: a, To: a, Target: c.target, Outcome: OutcomeOverLimit})
		}
		eligible = eligible[:n]
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].order < eligible[j].order
		})
	}

	changed := false
	var hit []string
	for _, c := range eligible {
		a := next[c.name]
		to := p.Blend(a, c.target)
		ch := Change{Name: c.name, From: a, To: to, Target: c.target, Outcome: OutcomeNoOp}
		if to != a {
			ch.Outcome = OutcomeApplied
			next[c.name] = to
			changed = true
			hit = append(hit, c.name)
		}
		changes = append(changes, ch)
	}

	// Overall level follows the trait mean through the same smoothing. Its
	// movement alone never makes a turn a change.
	mean := next.TraitMean()
	cur := next[params.Overall]
	if to := p.Blend(cur, mean); to != cur {
		next[params.Overall] = to
		if changed {
			hit = append(hit, params.Overall)
			changes = append(changes, Change{Name: params.Overall, From: cur, To: to, Target: mean, Outcome: OutcomeApplied})
		}
	}

	sortChanges(changes)

	decision := Decision{Action: "no_op", Reason: "no parameter changed"}
	if changed {
		decision = Decision{Action: "commit", Reason: fmt.Sprintf("parameters changed: %v", hit)}
	}

	return UpdateResult{
		NewState: next,
		Changes:  changes,
		Changed:  changed,
		Decision: decision,
	}
}

// target resolves a proposal value into an absolute target in [0,100].
func (p *Policy) target(current, v int) int {
	if p.config.Mode == ModeDelta {
		return params.Clamp(current + params.ClampTo(v, -params.MaxValue, params.MaxValue))
	}
	return params.Clamp(v)
}

// #endregion apply

// #region helpers
var canonicalOrder = func() map[string]int {
	m := make(map[string]int, len(params.All))
	for i, name := range params.All {
		m[name] = i
	}
	return m
}()

func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return canonicalOrder[changes[i].Name] < canonicalOrder[changes[j].Name]
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion helpers
