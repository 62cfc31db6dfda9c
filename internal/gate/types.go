package gate

// #region veto-type
// VetoType enumerates the reasons a parameter move can be blocked.
type VetoType string

const (
	VetoNoEvidence VetoType = "no_evidence"
)

// #endregion veto-type

// #region gate-config
// GateConfig associates parameters with the keywords that count as lexical
// evidence in the user's message.
type GateConfig struct {
	RequireEvidence bool                `mapstructure:"require_evidence" toml:"require_evidence" yaml:"require_evidence"`
	Keywords        map[string][]string `mapstructure:"keywords" toml:"keywords" yaml:"keywords"`
}

// DefaultGateConfig returns the gate disabled, with a starter lexicon that
// takes effect once RequireEvidence is switched on.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		RequireEvidence: false,
		Keywords: map[string][]string{
			"Organización":             {"plan", "orden", "agenda", "organiz", "lista", "horario"},
			"Iniciativa":               {"empec", "propuse", "decidi", "lance", "tome la iniciativa"},
			"Resolución de conflictos": {"conflicto", "discusion", "problema", "negoci", "acuerdo"},
			"Creatividad":              {"idea", "crea", "invent", "diseñ", "imagin"},
		},
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation for one parameter.
type GateDecision struct {
	Action  string // "pass" | "veto"
	Reason  string
	Vetoed  bool
	Veto    VetoType
	Matched string // keyword that satisfied the check, if any
}

// #endregion gate-decision
