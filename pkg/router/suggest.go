package router

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestRatio is the largest edit-distance-to-length ratio still
// considered a near miss.
const maxSuggestRatio = 0.4

// Suggest returns the bound pattern closest to path when the path looks
// like a near miss of a known route (a typo, a stale link). Exact and
// parameterized matches never reach here; callers use it to enrich the
// unmatched outcome with a hint.
func (r *Router) Suggest(path string) (string, bool) {
	path = strings.ToLower(strings.TrimSuffix(path, "/"))
	if path == "" {
		return "", false
	}

	best := ""
	bestDist := -1
	for _, pattern := range r.Patterns() {
		dist := levenshtein.ComputeDistance(path, strings.ToLower(pattern))
		if bestDist == -1 || dist < bestDist {
			best = pattern
			bestDist = dist
		}
	}
	if best == "" {
		return "", false
	}

	maxlen := len(path)
	if len(best) > maxlen {
		maxlen = len(best)
	}
	if float64(bestDist)/float64(maxlen) >= maxSuggestRatio {
		return "", false
	}
	return best, true
}
