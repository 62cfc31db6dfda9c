package signals

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/danielpatrickdp/afinia/internal/update"
)

// #region schema
// scoreBlock documents the hidden block. Only traits with a signal this turn
// are expected, so every field is optional.
type scoreBlock struct {
	Inteligencia           *int `json:"Inteligencia,omitempty" jsonschema:"minimum=0,maximum=100"`
	Simpatia               *int `json:"Simpatía,omitempty" jsonschema:"minimum=0,maximum=100"`
	Comunicacion           *int `json:"Comunicación,omitempty" jsonschema:"minimum=0,maximum=100"`
	Carisma                *int `json:"Carisma,omitempty" jsonschema:"minimum=0,maximum=100"`
	Creatividad            *int `json:"Creatividad,omitempty" jsonschema:"minimum=0,maximum=100"`
	ResolucionDeConflictos *int `json:"Resolución de conflictos,omitempty" jsonschema:"minimum=0,maximum=100"`
	Iniciativa             *int `json:"Iniciativa,omitempty" jsonschema:"minimum=0,maximum=100"`
	Organizacion           *int `json:"Organización,omitempty" jsonschema:"minimum=0,maximum=100"`
	ImpulsoPersonal        *int `json:"Impulso personal,omitempty" jsonschema:"minimum=0,maximum=100"`
}

// Schema returns the JSON Schema of the hidden block for the given mode.
// In delta mode values are signed offsets in [-100, 100].
func Schema(mode update.Mode) *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&scoreBlock{})
	s.Title = "AFINIA_SCORES"
	if mode == update.ModeDelta {
		s.Description = "Signed per-turn offsets for traits with a signal this turn."
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value.Minimum = json.Number("-100")
			pair.Value.Maximum = json.Number("100")
		}
	} else {
		s.Description = "Integer scores 0-100 for traits with a signal this turn."
	}
	return s
}

// SchemaJSON renders Schema as compact JSON for embedding in instructions.
func SchemaJSON(mode update.Mode) (string, error) {
	b, err := json.Marshal(Schema(mode))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// #endregion schema
