// Package negotiate selects which compression variant of an asset to
// serve for a given Accept-Encoding header. Selection is a pure function
// of its inputs: same header, variant set, and preferences always yield
// the same outcome.
package negotiate

import (
	"errors"

	"github.com/varserve/varserve/internal/variant"
)

// ErrNoAcceptableEncoding means the client refused every variant the
// asset has, identity included, and no identity variant was registered to
// fall back to. Callers treat it as not-satisfiable, never as a cue to
// guess an encoding.
var ErrNoAcceptableEncoding = errors.New("no acceptable encoding for asset")

// identityToken is the Accept-Encoding token clients use for the
// uncompressed representation.
const identityToken = "identity"

// Prefs carries the server-side negotiation configuration.
type Prefs struct {
	// DisableCompression forces identity for every request. This is the
	// configured operating mode, not a fallback.
	DisableCompression bool
	// Order ranks encoding names by server preference. It only breaks
	// ties between candidates with equal client weight.
	Order []string
}

// Outcome is the negotiation result for one request.
type Outcome struct {
	Variant variant.Variant
	// Fallback is set when identity was chosen only because nothing the
	// client accepts is available, rather than by client preference.
	Fallback bool
}

// Select picks one variant from the asset's available set. The variants
// slice is in discovery order; earlier entries win residual ties.
func Select(header string, variants []variant.Variant, prefs Prefs) (Outcome, error) {
	if prefs.DisableCompression {
		if id, ok := findIdentity(variants); ok {
			return Outcome{Variant: id}, nil
		}
		return Outcome{}, ErrNoAcceptableEncoding
	}

	w := resolveWeights(parseAccept(header))

	best := -1
	var bestWeight float64
	for i, v := range variants {
		weight, acceptable := effectiveWeight(w, v)
		if !acceptable {
			continue
		}
		if best < 0 || weight > bestWeight {
			best, bestWeight = i, weight
			continue
		}
		if weight == bestWeight && prefRank(prefs.Order, v.Name) < prefRank(prefs.Order, variants[best].Name) {
			best, bestWeight = i, weight
		}
	}
	if best >= 0 {
		return Outcome{Variant: variants[best]}, nil
	}

	// Nothing acceptable: serve identity if the asset has one, unless the
	// client refused identity by name. A wildcard refusal alone does not
	// block the fallback; an explicit "identity;q=0" does.
	if q, ok := w.exact[identityToken]; ok && q == 0 {
		return Outcome{}, ErrNoAcceptableEncoding
	}
	if id, ok := findIdentity(variants); ok {
		return Outcome{Variant: id, Fallback: true}, nil
	}
	return Outcome{}, ErrNoAcceptableEncoding
}

// effectiveWeight computes the client weight for v per the header:
// exact token first, wildcard next, and a default of 1.0 for identity
// only. acceptable is false for weight zero.
func effectiveWeight(w weights, v variant.Variant) (weight float64, acceptable bool) {
	if q, ok := w.exact[token(v)]; ok {
		return q, q > 0
	}
	if w.hasWildcard {
		return w.wildcard, w.wildcard > 0
	}
	if v.IsIdentity() {
		return 1.0, true
	}
	return 0, false
}

// token maps a variant to its Accept-Encoding token. The identity
// variant is named "none" internally but negotiated as "identity".
func token(v variant.Variant) string {
	if v.IsIdentity() {
		return identityToken
	}
	return v.Name
}

// prefRank is the index of name in the preference order, or len(order)
// for names not listed, so listed encodings outrank unlisted ones.
func prefRank(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return len(order)
}

func findIdentity(variants []variant.Variant) (variant.Variant, bool) {
	for _, v := range variants {
		if v.IsIdentity() {
			return v, true
		}
	}
	return variant.Variant{}, false
}
