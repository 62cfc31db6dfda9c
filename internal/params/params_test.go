package params

import (
	"encoding/json"
	"testing"
)

func TestDefaultsComplete(t *testing.T) {
	s := Defaults(DefaultValue)
	if len(s) != 10 {
		t.Fatalf("expected 10 keys, got %d", len(s))
	}
	for _, name := range All {
		if s[name] != DefaultValue {
			t.Fatalf("%s = %d, want %d", name, s[name], DefaultValue)
		}
	}
}

func TestFoldAndLookup(t *testing.T) {
	cases := map[string]string{
		"Comunicación":               Comunicacion,
		"comunicacion":               Comunicacion,
		"  COMUNICACIÓN ":            Comunicacion,
		"resolución   de conflictos": ResolucionDeConflictos,
		"simpatia":                   Simpatia,
		"nivel afinia":               Overall,
	}
	for in, want := range cases {
		got, ok := Lookup(in)
		if !ok || got != want {
			t.Errorf("Lookup(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := Lookup("Paciencia"); ok {
		t.Fatal("unknown key should not resolve")
	}
}

func TestCoerce(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{float64(70), 70, true},
		{69.6, 70, true},
		{"42", 42, true},
		{" 7.4 ", 7, true},
		{json.Number("12"), 12, true},
		{"alto", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{map[string]any{}, 0, false},
	}
	for _, c := range cases {
		got, ok := Coerce(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Coerce(%v) = %d, %v; want %d, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFromMapDropsUnknownAndClamps(t *testing.T) {
	raw := map[string]any{
		"comunicación": 150,
		"Carisma":      -20,
		"Paciencia":    50,
		"Iniciativa":   "mucha",
	}
	s, dropped := FromMap(raw, DefaultValue)
	if s[Comunicacion] != 100 {
		t.Fatalf("expected clamp to 100, got %d", s[Comunicacion])
	}
	if s[Carisma] != 0 {
		t.Fatalf("expected clamp to 0, got %d", s[Carisma])
	}
	if s[Iniciativa] != DefaultValue {
		t.Fatalf("non-numeric value should keep default, got %d", s[Iniciativa])
	}
	if _, ok := s["Paciencia"]; ok {
		t.Fatal("unknown key leaked into set")
	}
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped keys, got %v", dropped)
	}
}

func TestCompleteRemovesStrayKeys(t *testing.T) {
	s := Set{"Carisma": 120, "extra": 3}
	s.Complete(5)
	if _, ok := s["extra"]; ok {
		t.Fatal("stray key kept")
	}
	if s[Carisma] != 100 || s[Organizacion] != 5 {
		t.Fatalf("unexpected set %v", s)
	}
}

func TestTraitMean(t *testing.T) {
	s := Defaults(10)
	s[Comunicacion] = 60
	s[Overall] = 99 // ignored by the mean
	// (8*10 + 60) / 9 = 15.56
	if got := s.TraitMean(); got != 16 {
		t.Fatalf("TraitMean = %d, want 16", got)
	}
}
