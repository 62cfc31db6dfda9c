package signals

import "github.com/danielpatrickdp/afinia/internal/update"

// #region markers
// Markers delimiting the hidden block. They are a fixed contract with the
// instructions sent to the model.
const (
	OpenMarker  = "<AFINIA_SCORES>"
	CloseMarker = "</AFINIA_SCORES>"
)

// #endregion markers

// #region proposal
// Proposal maps canonical parameter names to proposed values for one turn.
type Proposal map[string]int

// #endregion proposal

// #region config
// ExtractorConfig holds the marker pair and how values are bounded.
type ExtractorConfig struct {
	Open  string
	Close string
	Mode  update.Mode
}

// DefaultExtractorConfig returns the standard markers in absolute mode.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Open:  OpenMarker,
		Close: CloseMarker,
		Mode:  update.ModeAbsolute,
	}
}

// #endregion config

// #region extraction
// Extraction is the result of scanning one model response.
type Extraction struct {
	Proposal  Proposal
	Visible   string   // response with the hidden block removed and trimmed
	Found     bool     // an open marker was present
	Malformed bool     // block present but unusable (bad JSON, not an object, unterminated)
	Dropped   []string // keys that were unknown or had non-numeric values
	Err       error    // parse detail, for logging only
}

// #endregion extraction
