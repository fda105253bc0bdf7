package negotiate

import (
	"strconv"
	"strings"
)

// acceptEntry is one parsed Accept-Encoding token with its quality weight.
type acceptEntry struct {
	name string // lowercased encoding token, "*" for wildcard
	q    float64
}

// parseAccept parses an Accept-Encoding header value into its entries.
// Tokens are comma separated, each optionally carrying ";q=<float>"
// (default 1.0). Malformed quality values fall back to 1.0 rather than
// dropping the token. An empty header yields no entries.
func parseAccept(header string) []acceptEntry {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]acceptEntry, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		q := 1.0
		if i := strings.IndexByte(part, ';'); i >= 0 {
			name = strings.TrimSpace(part[:i])
			for _, param := range strings.Split(part[i+1:], ";") {
				k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
					continue
				}
				if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
					q = f
				}
			}
		}
		if name == "" {
			continue
		}
		out = append(out, acceptEntry{name: strings.ToLower(name), q: q})
	}
	return out
}

// weights resolves exact and wildcard weights from parsed entries.
// exact maps encoding token -> weight; wildcard is the "*" weight
// (hasWildcard false when no "*" token was sent).
type weights struct {
	exact       map[string]float64
	wildcard    float64
	hasWildcard bool
}

func resolveWeights(entries []acceptEntry) weights {
	w := weights{exact: make(map[string]float64, len(entries))}
	for _, e := range entries {
		if e.name == "*" {
			w.wildcard = e.q
			w.hasWildcard = true
			continue
		}
		// first occurrence wins when a client repeats a token
		if _, ok := w.exact[e.name]; !ok {
			w.exact[e.name] = e.q
		}
	}
	return w
}
