package replay

import (
	"testing"

	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/update"
)

func scored(turnID, message, block string) Interaction {
	return Interaction{
		TurnID:       turnID,
		Message:      message,
		ResponseText: "Vale. <AFINIA_SCORES>" + block + "</AFINIA_SCORES>",
	}
}

func TestReplay_CommitPath(t *testing.T) {
	start := params.Defaults(params.DefaultValue)
	start[params.Comunicacion] = 50
	start[params.Overall] = 14

	results := Replay(start, []Interaction{scored("t1", "hola", `{"Comunicación": 90}`)}, DefaultReplayConfig())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Action != "commit" {
		t.Fatalf("action = %s (%s)", r.Action, r.Reason)
	}
	if got := r.State[params.Comunicacion]; got != 58 {
		t.Errorf("Comunicación = %d, want 58", got)
	}
	if start[params.Comunicacion] != 50 {
		t.Error("start state was modified")
	}
}

func TestReplay_NoBlock(t *testing.T) {
	start := params.Defaults(params.DefaultValue)
	results := Replay(start, []Interaction{{TurnID: "t1", Message: "hola", ResponseText: "¿Qué tal?"}}, DefaultReplayConfig())

	r := results[0]
	if r.Action != "no_op" || r.Found || r.Malformed {
		t.Errorf("result = %+v", r)
	}
	if !r.State.Equal(start) {
		t.Errorf("state changed: %v", r.State)
	}
}

func TestReplay_OverallIgnored(t *testing.T) {
	start := params.Defaults(params.DefaultValue)
	results := Replay(start, []Interaction{scored("t1", "hola", `{"Nivel AfinIA": 99}`)}, DefaultReplayConfig())

	r := results[0]
	if r.Action != "no_op" {
		t.Errorf("action = %s, want no_op", r.Action)
	}
	if len(r.Changes) != 1 || r.Changes[0].Outcome != update.OutcomeOverallIgnored {
		t.Errorf("changes = %+v", r.Changes)
	}
}

func TestReplay_DeltaMode(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.UpdateConfig.Mode = update.ModeDelta
	start := params.Defaults(params.DefaultValue)

	results := Replay(start, []Interaction{scored("t1", "hola", `{"Carisma": -300}`)}, cfg)
	// Target clamps to 0, falling factor 0.2: round(10*0.8) = 8.
	if got := results[0].State[params.Carisma]; got != 8 {
		t.Errorf("Carisma = %d, want 8", got)
	}
}

func TestReplay_CustomMarkers(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Extractor.Open = "[[S]]"
	cfg.Extractor.Close = "[[/S]]"
	start := params.Defaults(params.DefaultValue)

	in := Interaction{TurnID: "t1", Message: "hola", ResponseText: "Bien [[S]]{\"Iniciativa\": 30}[[/S]]"}
	r := Replay(start, []Interaction{in}, cfg)[0]
	if r.Visible != "Bien" {
		t.Errorf("visible = %q", r.Visible)
	}
	if got := r.State[params.Iniciativa]; got != 17 {
		t.Errorf("Iniciativa = %d, want 17", got)
	}
}

func TestReplay_Summarize(t *testing.T) {
	results := []ReplayResult{
		{TurnID: "t1", Action: "commit"},
		{TurnID: "t2", Action: "no_op", Malformed: true},
		{TurnID: "t3", Action: "no_op"},
	}
	final := params.Defaults(30)
	s := Summarize(results, final)

	if s.TotalTurns != 3 || s.Commits != 1 || s.NoOps != 2 || s.Malformed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if !s.FinalState.Equal(final) {
		t.Error("final state not passed through")
	}
}

func TestReplay_Deterministic(t *testing.T) {
	start := params.Defaults(params.DefaultValue)
	in := []Interaction{
		scored("t1", "hola", `{"Comunicación": 80, "Carisma": 60}`),
		scored("t2", "hola", `{"Comunicación": 80, "Simpatía": 0}`),
	}
	a := Replay(start, in, DefaultReplayConfig())
	b := Replay(start, in, DefaultReplayConfig())
	for i := range a {
		if !a[i].State.Equal(b[i].State) || a[i].Action != b[i].Action {
			t.Fatalf("turn %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFinalState_Empty(t *testing.T) {
	start := params.Defaults(25)
	got := FinalState(start, nil)
	if !got.Equal(start) {
		t.Errorf("FinalState(nil) = %v", got)
	}
}
