// Package gate decides whether a parameter may move on a given turn, based
// on lexical evidence in the message that triggered the proposal.
package gate

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region gate
// Gate evaluates evidence requirements per parameter. Keywords are folded
// once at construction.
type Gate struct {
	require  bool
	keywords map[string][]string // canonical name -> folded keywords
}

// NewGate creates a gate with the given configuration. Keyword lists whose
// parameter name does not resolve to a canonical name are ignored.
func NewGate(config GateConfig) *Gate {
	g := &Gate{
		require:  config.RequireEvidence,
		keywords: make(map[string][]string, len(config.Keywords)),
	}
	for key, words := range config.Keywords {
		name, ok := params.Lookup(key)
		if !ok {
			continue
		}
		for _, w := range words {
			if f := params.Fold(w); f != "" {
				g.keywords[name] = append(g.keywords[name], f)
			}
		}
	}
	return g
}

// Gated reports whether the parameter is subject to an evidence check.
func (g *Gate) Gated(name string) bool {
	return g.require && len(g.keywords[name]) > 0
}

// Evaluate checks whether message carries evidence for the parameter.
// Ungated parameters always pass.
func (g *Gate) Evaluate(name, message string) GateDecision {
	if !g.Gated(name) {
		return GateDecision{Action: "pass", Reason: "not gated"}
	}

	folded := params.Fold(message)
	for _, kw := range g.keywords[name] {
		if strings.Contains(folded, kw) {
			return GateDecision{
				Action:  "pass",
				Reason:  fmt.Sprintf("evidence %q", kw),
				Matched: kw,
			}
		}
	}

	return GateDecision{
		Action: "veto",
		Reason: fmt.Sprintf("no evidence for %s in message", name),
		Vetoed: true,
		Veto:   VetoNoEvidence,
	}
}

// #endregion gate
