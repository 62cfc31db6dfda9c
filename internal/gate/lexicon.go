package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region lexicon
// LoadKeywords reads a YAML document mapping parameter names to keyword
// lists, e.g.
//
//	Organización: [plan, agenda]
//	Creatividad: [idea]
func LoadKeywords(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var out map[string][]string
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return out, nil
}

// #endregion lexicon
