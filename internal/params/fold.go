package params

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// #region fold
var canonicalByFold = func() map[string]string {
	m := make(map[string]string, len(All))
	for _, name := range All {
		m[Fold(name)] = name
	}
	return m
}()

// Fold lower-cases s, strips diacritics and collapses whitespace so that
// "COMUNICACION", "comunicación" and " Comunicación " compare equal.
func Fold(s string) string {
	// transform.Chain is stateful, build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Lookup resolves a case- and diacritic-insensitive key to its canonical name.
func Lookup(key string) (string, bool) {
	name, ok := canonicalByFold[Fold(key)]
	return name, ok
}

// IsTrait reports whether name is one of the nine canonical traits.
func IsTrait(name string) bool {
	return name != Overall && isCanonical(name)
}

func isCanonical(name string) bool {
	c, ok := canonicalByFold[Fold(name)]
	return ok && c == name
}

// #endregion fold
