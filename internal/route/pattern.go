package route

import (
	"fmt"
	"strings"

	"github.com/tidwall/match"
)

// Wildcard and separator tokens.
const (
	// WildcardSingle matches exactly one segment, including an empty one.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// Separator separates route segments.
	Separator = "/"
)

// Segments splits a route or pattern into its segments. The leading
// separator is dropped and empty segments are kept:
//
//	"/order/create/42" -> ["order", "create", "42"]
//	"/order//42"       -> ["order", "", "42"]
func Segments(s string) []string {
	return strings.Split(strings.TrimPrefix(s, Separator), Separator)
}

// ValidatePattern checks that p can be added to a table.
func ValidatePattern(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: blank", ErrInvalidPattern)
	}
	if !strings.HasPrefix(p, Separator) {
		return fmt.Errorf("%w: %q does not start with %q", ErrInvalidPattern, p, Separator)
	}
	return nil
}

// isGlob reports whether seg is matched per character rather than whole,
// as in "cre*" or "v?". The bare wildcards are handled separately.
func isGlob(seg string) bool {
	if seg == WildcardSingle || seg == WildcardMulti {
		return false
	}
	return match.IsPattern(seg)
}

// matchSegment reports whether one pattern segment matches one route segment.
func matchSegment(pattern, segment string) bool {
	if pattern == WildcardSingle || pattern == segment {
		return true
	}
	if !isGlob(pattern) {
		return false
	}
	return match.Match(segment, pattern)
}

// validateRoute rejects routes that can never be matched.
func validateRoute(r string) error {
	if strings.TrimSpace(r) == "" {
		return &InvalidRouteError{Route: r, Reason: "blank"}
	}
	if !strings.HasPrefix(r, Separator) {
		return &InvalidRouteError{Route: r, Reason: "does not start with " + Separator}
	}
	return nil
}

// MatchPattern reports whether pattern matches route. It is the reference
// implementation the trie agrees with and is convenient for one-off checks.
func MatchPattern(pattern, route string) bool {
	if ValidatePattern(pattern) != nil || validateRoute(route) != nil {
		return false
	}
	return matchSegments(Segments(pattern), Segments(route))
}

func matchSegments(pattern, route []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == WildcardMulti {
			rest := pattern[1:]
			for i := 0; i <= len(route); i++ {
				if matchSegments(rest, route[i:]) {
					return true
				}
			}
			return false
		}
		if len(route) == 0 {
			return false
		}
		if !matchSegment(head, route[0]) {
			return false
		}
		pattern = pattern[1:]
		route = route[1:]
	}
	return len(route) == 0
}
