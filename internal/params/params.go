package params

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// #region constructors
// Defaults returns a complete set with every key at def.
func Defaults(def int) Set {
	def = Clamp(def)
	s := make(Set, len(All))
	for _, name := range All {
		s[name] = def
	}
	return s
}

// FromMap builds a complete set from a decoded JSON object. Keys are matched
// with Lookup, values coerced with Coerce and clamped. Keys that are not
// recognized, or whose values are not numeric, are returned in dropped and
// the corresponding parameter keeps def.
func FromMap(raw map[string]any, def int) (Set, []string) {
	return Merge(Defaults(def), raw)
}

// Merge overlays raw on a copy of base. base is completed with DefaultValue
// for any missing key before the overlay.
func Merge(base Set, raw map[string]any) (Set, []string) {
	out := base.Clone()
	out.Complete(DefaultValue)

	var dropped []string
	for key, v := range raw {
		name, ok := Lookup(key)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		n, ok := Coerce(v)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		out[name] = Clamp(n)
	}
	return out, dropped
}

// #endregion constructors

// #region methods
// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Complete fills missing recognized keys with def, clamps every value and
// removes unrecognized keys.
func (s Set) Complete(def int) {
	for k := range s {
		if !isCanonical(k) {
			delete(s, k)
		}
	}
	for _, name := range All {
		v, ok := s[name]
		if !ok {
			v = def
		}
		s[name] = Clamp(v)
	}
}

// Equal reports whether both sets hold the same values for every recognized key.
func (s Set) Equal(o Set) bool {
	for _, name := range All {
		if s[name] != o[name] {
			return false
		}
	}
	return true
}

// TraitMean returns the rounded arithmetic mean of the nine traits.
func (s Set) TraitMean() int {
	sum := 0
	for _, name := range Traits {
		sum += s[name]
	}
	return int(math.Round(float64(sum) / float64(len(Traits))))
}

// #endregion methods

// #region coercion
// Clamp bounds v to [MinValue, MaxValue].
func Clamp(v int) int {
	return ClampTo(v, MinValue, MaxValue)
}

// ClampTo bounds v to [lo, hi].
func ClampTo(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Coerce converts a decoded JSON value to an integer. Numbers are rounded,
// numeric strings parsed. Anything else reports false.
func Coerce(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		return t, true
	case int64:
		return int(t), true
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// Bound before converting so huge values cannot overflow int.
	f = math.Max(math.Min(f, 1e9), -1e9)
	return int(math.Round(f)), true
}

// #endregion coercion
