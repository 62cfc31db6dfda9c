// Package signals extracts the hidden score block that the model appends to
// its reply and turns it into a parameter proposal.
package signals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// #region extractor
// Extractor is safe for concurrent use.
type Extractor struct {
	open  string
	close string
	block *regexp.Regexp
	mode  update.Mode
}

// NewExtractor compiles the marker pattern. Empty markers fall back to the
// defaults.
func NewExtractor(config ExtractorConfig) *Extractor {
	if config.Open == "" {
		config.Open = OpenMarker
	}
	if config.Close == "" {
		config.Close = CloseMarker
	}
	if config.Mode == "" {
		config.Mode = update.ModeAbsolute
	}
	pattern := regexp.QuoteMeta(config.Open) + `([\s\S]*?)` + regexp.QuoteMeta(config.Close)
	return &Extractor{
		open:  config.Open,
		close: config.Close,
		block: regexp.MustCompile(pattern),
		mode:  config.Mode,
	}
}

// Markers returns the open and close delimiters.
func (e *Extractor) Markers() (string, string) {
	return e.open, e.close
}

// Mode reports how proposal values are bounded.
func (e *Extractor) Mode() update.Mode {
	return e.mode
}

// #endregion extractor

// #region extract
// Extract locates the first hidden block in text, parses it, and returns the
// visible remainder. It never fails: problems are reported through
// Malformed and Err and yield an empty proposal.
func (e *Extractor) Extract(text string) Extraction {
	out := Extraction{Proposal: Proposal{}}

	loc := e.block.FindStringSubmatchIndex(text)
	if loc == nil {
		// A dangling open marker still must not reach the user.
		if i := strings.Index(text, e.open); i >= 0 {
			out.Found = true
			out.Malformed = true
			out.Err = errors.New("unterminated score block")
			out.Visible = strings.TrimSpace(text[:i])
			return out
		}
		out.Visible = strings.TrimSpace(text)
		return out
	}

	out.Found = true
	out.Visible = joinAround(text[:loc[0]], text[loc[1]:])

	raw, err := decodeObject(text[loc[2]:loc[3]])
	if err != nil {
		out.Malformed = true
		out.Err = err
		return out
	}
	out.Proposal, out.Dropped = e.proposal(raw)
	return out
}

// proposal canonicalizes keys and bounds values. When two spellings fold to
// the same name, the exact canonical spelling wins.
func (e *Extractor) proposal(raw map[string]any) (Proposal, []string) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := Proposal{}
	exact := map[string]bool{}
	var dropped []string
	for _, key := range keys {
		name, ok := params.Lookup(key)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		v, ok := params.Coerce(raw[key])
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		if exact[name] {
			continue
		}
		if e.mode == update.ModeDelta {
			v = params.ClampTo(v, -params.MaxValue, params.MaxValue)
		} else {
			v = params.Clamp(v)
		}
		p[name] = v
		exact[name] = key == name
	}
	return p, dropped
}

// #endregion extract

// #region helpers
// decodeObject parses a JSON object, tolerating surrounding prose or code
// fences by falling back to the outermost braces.
func decodeObject(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty score block")
	}
	m, err := unmarshalObject(s)
	if err == nil {
		return m, nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in score block: %w", err)
	}
	m, err = unmarshalObject(s[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("invalid score block JSON: %w", err)
	}
	return m, nil
}

func unmarshalObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("score block is not an object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after score block")
	}
	return m, nil
}

// joinAround glues the text on both sides of a removed region. The join is
// a newline if the whitespace around the region held one, else a space.
func joinAround(prefix, suffix string) string {
	before := strings.TrimRightFunc(prefix, unicode.IsSpace)
	after := strings.TrimLeftFunc(suffix, unicode.IsSpace)
	if before == "" || after == "" {
		return strings.TrimSpace(before + after)
	}
	gap := prefix[len(before):] + suffix[:len(suffix)-len(after)]
	sep := " "
	if strings.ContainsAny(gap, "\n\r") {
		sep = "\n"
	}
	return strings.TrimSpace(before + sep + after)
}

// #endregion helpers
