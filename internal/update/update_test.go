package update

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/afinia/internal/gate"
	"github.com/danielpatrickdp/afinia/internal/params"
)

func defaultPolicy() *Policy {
	return NewPolicy(DefaultUpdateConfig(), nil)
}

// #region blend-tests
func TestBlendStaysWithinCaps(t *testing.T) {
	p := defaultPolicy()
	cfg := p.Config()
	for a := 0; a <= 100; a++ {
		for n := 0; n <= 100; n++ {
			got := p.Blend(a, n)
			if got > a+cfg.MaxStepUp || got < a-cfg.MaxStepDown {
				t.Fatalf("Blend(%d,%d)=%d exceeds caps", a, n, got)
			}
			if (n > a && got < a) || (n < a && got > a) {
				t.Fatalf("Blend(%d,%d)=%d moved away from target", a, n, got)
			}
			if got < 0 || got > 100 {
				t.Fatalf("Blend(%d,%d)=%d out of range", a, n, got)
			}
		}
	}
}

func TestBlendClampsInputs(t *testing.T) {
	p := defaultPolicy()
	for _, a := range []int{0, 35, 80, 100} {
		if p.Blend(a, 250) != p.Blend(a, 100) {
			t.Fatalf("proposal above 100 not clamped for a=%d", a)
		}
		if p.Blend(a, -40) != p.Blend(a, 0) {
			t.Fatalf("proposal below 0 not clamped for a=%d", a)
		}
	}
	if p.Blend(140, 100) != 100 {
		t.Fatal("current value above 100 should clamp before blending")
	}
}

func TestBlendAsymmetricFactor(t *testing.T) {
	p := defaultPolicy()
	// Rising from low: 10*0.65 + 20*0.35 = 13.5 -> 14
	if got := p.Blend(10, 20); got != 14 {
		t.Fatalf("low rising: got %d, want 14", got)
	}
	// Mid: 50*0.8 + 60*0.2 = 52
	if got := p.Blend(50, 60); got != 52 {
		t.Fatalf("mid rising: got %d, want 52", got)
	}
	// Rising near the ceiling: 80*0.9 + 100*0.1 = 82
	if got := p.Blend(80, 100); got != 82 {
		t.Fatalf("high rising: got %d, want 82", got)
	}
	// Falling uses the base factor and the down cap: 50*0.8 = 40 -> capped at 45
	if got := p.Blend(50, 0); got != 45 {
		t.Fatalf("falling: got %d, want 45", got)
	}
}

func TestBlendZeroCapFreezesDirection(t *testing.T) {
	cfg := DefaultUpdateConfig()
	cfg.MaxStepDown = 0
	p := NewPolicy(cfg, nil)
	if got := p.Blend(60, 0); got != 60 {
		t.Fatalf("down cap 0 should freeze falls, got %d", got)
	}
	if got := p.Blend(60, 100); got <= 60 {
		t.Fatalf("rises should still work, got %d", got)
	}
}

// #endregion blend-tests

// #region apply-tests
func TestApplyIdempotentProposal(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(params.DefaultValue)
	old[params.Comunicacion] = 50

	res := p.Apply(old, map[string]int{params.Comunicacion: 50}, "hola")
	if res.Changed {
		t.Fatalf("expected no change, got %+v", res.Changes)
	}
	if res.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", res.Decision.Action)
	}
	if len(res.Changes) != 1 || res.Changes[0].Outcome != OutcomeNoOp {
		t.Fatalf("expected single no_op change, got %+v", res.Changes)
	}
	if len(res.Applied()) != 0 {
		t.Fatalf("expected nothing applied, got %+v", res.Applied())
	}
}

func TestApplyEmptyProposalNoChange(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(params.DefaultValue)
	old[params.Comunicacion] = 50

	// Repeated turns without scores must not creep the overall level.
	for i := 0; i < 3; i++ {
		res := p.Apply(old, nil, "hola")
		if res.Changed || res.Decision.Action != "no_op" || len(res.Changes) != 0 {
			t.Fatalf("turn %d: expected no_op with no changes, got %+v", i, res)
		}
	}
}

func TestApplyEndToEndScenario(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(params.DefaultValue)
	old[params.Comunicacion] = 50

	res := p.Apply(old, map[string]int{params.Comunicacion: 90}, "me cuesta hablar en público")
	got := res.NewState[params.Comunicacion]
	if got <= 50 || got > 60 {
		t.Fatalf("Comunicación = %d, want in (50,60]", got)
	}
	wantOverall := p.Blend(old[params.Overall], res.NewState.TraitMean())
	if res.NewState[params.Overall] != wantOverall {
		t.Fatalf("overall = %d, want %d", res.NewState[params.Overall], wantOverall)
	}
	if old[params.Comunicacion] != 50 {
		t.Fatal("Apply must not mutate its input")
	}

	want := params.Defaults(params.DefaultValue)
	want[params.Comunicacion] = 58
	want[params.Overall] = 12
	if diff := cmp.Diff(want, res.NewState); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyOverallAlwaysRecomputed(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(60)
	old[params.Overall] = 20

	res := p.Apply(old, nil, "")
	if res.Changed {
		t.Fatal("overall drift alone must not count as a change")
	}
	if res.NewState[params.Overall] != p.Blend(20, 60) {
		t.Fatalf("overall = %d, want %d", res.NewState[params.Overall], p.Blend(20, 60))
	}

	res = p.Apply(old, map[string]int{params.Carisma: 70}, "")
	if !res.Changed {
		t.Fatal("expected a trait change")
	}
	var overall bool
	for _, c := range res.Applied() {
		if c.Name == params.Overall {
			overall = true
		}
	}
	if !overall {
		t.Fatalf("overall change should be reported with a trait change, got %+v", res.Changes)
	}
}

func TestApplyIgnoresOverallProposal(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(params.DefaultValue)
	res := p.Apply(old, map[string]int{params.Overall: 100}, "")
	if res.Changed {
		t.Fatalf("direct overall proposal must be ignored, got %+v", res.Changes)
	}
	if res.Changes[0].Outcome != OutcomeOverallIgnored {
		t.Fatalf("expected overall_ignored, got %s", res.Changes[0].Outcome)
	}
}

func TestApplyMinDelta(t *testing.T) {
	cfg := DefaultUpdateConfig()
	cfg.MinDelta = 5
	p := NewPolicy(cfg, nil)
	res := p.Apply(params.Defaults(10), map[string]int{params.Carisma: 13}, "")
	if res.Changed || res.Changes[0].Outcome != OutcomeBelowThreshold {
		t.Fatalf("expected below_threshold, got %+v", res.Changes)
	}
}

func TestApplyMaxUpdatesPerTurn(t *testing.T) {
	cfg := DefaultUpdateConfig()
	cfg.MaxUpdatesPerTurn = 2
	p := NewPolicy(cfg, nil)

	res := p.Apply(params.Defaults(10), map[string]int{
		params.Inteligencia: 90,
		params.Carisma:      20,
		params.Creatividad:  60,
	}, "")

	outcomes := map[string]Outcome{}
	for _, c := range res.Changes {
		outcomes[c.Name] = c.Outcome
	}
	if outcomes[params.Inteligencia] != OutcomeApplied || outcomes[params.Creatividad] != OutcomeApplied {
		t.Fatalf("largest deltas should apply: %v", outcomes)
	}
	if outcomes[params.Carisma] != OutcomeOverLimit {
		t.Fatalf("smallest delta should be over_limit: %v", outcomes)
	}
}

func TestApplyEvidenceGate(t *testing.T) {
	g := gate.NewGate(gate.GateConfig{
		RequireEvidence: true,
		Keywords:        map[string][]string{params.Organizacion: {"agenda"}},
	})
	p := NewPolicy(DefaultUpdateConfig(), g)
	prop := map[string]int{params.Organizacion: 80, params.Carisma: 80}

	res := p.Apply(params.Defaults(10), prop, "hoy salí con amigos")
	if res.NewState[params.Organizacion] != 10 {
		t.Fatalf("gated parameter moved without evidence: %d", res.NewState[params.Organizacion])
	}
	if res.NewState[params.Carisma] == 10 {
		t.Fatal("ungated parameter should move")
	}

	res = p.Apply(params.Defaults(10), prop, "Organicé mi agenda")
	if res.NewState[params.Organizacion] == 10 {
		t.Fatal("gated parameter should move with evidence")
	}
}

func TestApplyDeltaMode(t *testing.T) {
	cfg := DefaultUpdateConfig()
	cfg.Mode = ModeDelta
	p := NewPolicy(cfg, nil)
	old := params.Defaults(10)
	old[params.Comunicacion] = 50

	res := p.Apply(old, map[string]int{params.Comunicacion: 30}, "")
	// target 80: 50*0.8 + 80*0.2 = 56
	if got := res.NewState[params.Comunicacion]; got != 56 {
		t.Fatalf("delta mode: got %d, want 56", got)
	}
	res = p.Apply(old, map[string]int{params.Comunicacion: -500}, "")
	if got := res.NewState[params.Comunicacion]; got != 45 {
		t.Fatalf("negative delta: got %d, want 45", got)
	}
}

func TestApplyDeterministic(t *testing.T) {
	p := defaultPolicy()
	old := params.Defaults(30)
	prop := map[string]int{params.Simpatia: 70, params.Iniciativa: 5}
	r1 := p.Apply(old, prop, "x")
	r2 := p.Apply(old, prop, "x")
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Fatalf("non-deterministic result:\n%s", diff)
	}
}

// #endregion apply-tests
