// Package params defines the per-user parameter set: the nine trait
// parameters tracked from conversation and the derived overall level.
package params

// #region names
// Canonical parameter names. The order is the display and tie-break order.
const (
	Inteligencia           = "Inteligencia"
	Simpatia               = "Simpatía"
	Comunicacion           = "Comunicación"
	Carisma                = "Carisma"
	Creatividad            = "Creatividad"
	ResolucionDeConflictos = "Resolución de conflictos"
	Iniciativa             = "Iniciativa"
	Organizacion           = "Organización"
	ImpulsoPersonal        = "Impulso personal"

	// Overall is derived from the nine traits and never set from model output.
	Overall = "Nivel AfinIA"
)

// Traits lists the nine trait parameters in canonical order.
var Traits = []string{
	Inteligencia,
	Simpatia,
	Comunicacion,
	Carisma,
	Creatividad,
	ResolucionDeConflictos,
	Iniciativa,
	Organizacion,
	ImpulsoPersonal,
}

// All lists every recognized parameter, traits first, overall last.
var All = append(append([]string{}, Traits...), Overall)

// #endregion names

// #region bounds
const (
	MinValue = 0
	MaxValue = 100

	// DefaultValue fills any recognized key missing from a stored document.
	DefaultValue = 10
)

// #endregion bounds

// #region set
// Set maps every recognized parameter name to an integer in [0,100].
type Set map[string]int

// #endregion set
