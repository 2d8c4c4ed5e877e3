// Package batch decides which chunks can share an engine call and executes
// the resulting groups with a three-tier fallback: one native batch call,
// then serial calls that skip redundant reconfiguration, then per-chunk
// isolation with a silent placeholder.
package batch

import (
	"fmt"
	"math"
	"strings"

	"github.com/dgnsrekt/batchtts/tts"
)

// Signature is the quantized fingerprint of a parameter set, one slot per
// entry of tts.ParameterKeys.
type Signature [6]float64

// Quantize snaps v onto the tolerance grid: round(v/tol)*tol. A tolerance
// of zero or less leaves v unchanged, which makes matching exact.
func Quantize(v, tol float64) float64 {
	if tol <= 0 {
		return v
	}
	return math.Round(v/tol) * tol
}

// SignatureOf fingerprints p at tolerance tol.
func SignatureOf(p tts.Parameters, tol float64) Signature {
	var s Signature
	for i, v := range p.Values() {
		s[i] = Quantize(v, tol)
	}
	return s
}

// String renders the signature as key=value pairs.
func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, k := range tts.ParameterKeys {
		parts[i] = fmt.Sprintf("%s=%.4g", k, s[i])
	}
	return strings.Join(parts, " ")
}

// MatchMode selects how two parameter sets are judged batchable.
type MatchMode int

const (
	// MatchQuantized groups chunks whose signatures are equal.
	MatchQuantized MatchMode = iota
	// MatchAbsolute groups chunks whose every parameter lies within the
	// tolerance of the group's first member.
	MatchAbsolute
)

// String returns the config spelling of the mode.
func (m MatchMode) String() string {
	switch m {
	case MatchAbsolute:
		return tts.MatchAbsolute
	default:
		return tts.MatchQuantized
	}
}

// ParseMatchMode maps a config value onto a MatchMode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(s) {
	case tts.MatchQuantized, "":
		return MatchQuantized, nil
	case tts.MatchAbsolute:
		return MatchAbsolute, nil
	default:
		return MatchQuantized, fmt.Errorf("%w: unknown match mode %q", tts.ErrInvalidConfig, s)
	}
}

// batchable reports whether candidate may join a group led by first.
func batchable(mode MatchMode, tol float64, first, candidate tts.Parameters) bool {
	if mode == MatchAbsolute {
		return first.Within(candidate, tol)
	}
	return SignatureOf(first, tol) == SignatureOf(candidate, tol)
}
