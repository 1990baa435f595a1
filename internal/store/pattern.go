package store

import "github.com/tidwall/match"

// maxPatternComplexity bounds the backtracking work spent on one key so that
// adversarial patterns like "*a*a*a*a*b" cannot stall the store lock.
const maxPatternComplexity = 1000

// MatchPattern reports whether key matches the glob pattern. '*' matches any
// run of characters (including none) and '?' exactly one. A backslash makes
// the next character literal, so `\*` matches only a '*'. Every other
// character, including regular-expression metacharacters, matches itself.
// A match that exceeds the complexity budget is treated as no match.
func MatchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	matched, stopped := match.MatchLimit(key, pattern, maxPatternComplexity)
	return matched && !stopped
}
