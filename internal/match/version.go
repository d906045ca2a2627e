// Package match picks the KB version that best corresponds to a local version string.
package match

import (
	"strconv"
	"strings"

	"github.com/kamusis/kbmatch/internal/kb"
)

// Strength is the confidence tier of a version match. Higher wins.
type Strength int

const (
	None Strength = iota
	// Approximate: same leading text, final numeric segments within 2 of each other.
	Approximate
	// Contains: one version string is a prefix of, or embedded in, the other.
	Contains
	// Exact: equal after normalization (or equal apart from a leading "v").
	Exact
)

func (s Strength) String() string {
	switch s {
	case Approximate:
		return "approximate"
	case Contains:
		return "contains"
	case Exact:
		return "exact"
	default:
		return "none"
	}
}

// Resolve scans versions in KB order and returns the best match for target.
//
// The first candidate equal to target after normalization is returned at once.
// Otherwise the strongest candidate wins, then the longest normalized string,
// then the earliest in scan order. A Strength of None means no match and the
// returned version is the zero value.
func Resolve(versions []kb.ComponentVersion, target string) (kb.ComponentVersion, Strength) {
	t := Normalize(target)

	var (
		best         kb.ComponentVersion
		bestStrength = None
		bestLen      int
	)
	for _, v := range versions {
		c := Normalize(v.VersionName)
		if c == t {
			return v, Exact
		}
		s := score(c, t)
		if s == None {
			continue
		}
		if s > bestStrength || (s == bestStrength && len(c) > bestLen) {
			best, bestStrength, bestLen = v, s, len(c)
		}
	}
	return best, bestStrength
}

// Normalize maps a version string to the form used for comparison.
func Normalize(v string) string {
	return strings.ReplaceAll(v, "-", ".")
}

// score grades a normalized candidate against a normalized target, excluding equality.
// An empty target is embedded in every candidate, so the longest candidate wins.
func score(c, t string) Strength {
	if c == "" {
		return None
	}
	a, b, size := LongestCommonSubstring(c, t)
	switch {
	case a == 0 && b == 0 && size == len(c):
		// candidate is a prefix of target
		return Contains
	case b == 0 && size == len(t):
		// target is embedded in candidate; a digit before it means a different version
		prefix := c[:a]
		if strings.ContainsAny(prefix, "0123456789") {
			return None
		}
		if strings.EqualFold(prefix, "v") {
			return Exact
		}
		return Contains
	case a == 0 && b == 0 && size > 2:
		if closeNumericTail(c, t, size) {
			return Approximate
		}
	}
	return None
}

// closeNumericTail reports whether a shared prefix of length size ends within two
// characters of target's last '.' and both final segments are numbers at most 2 apart.
func closeNumericTail(c, t string, size int) bool {
	d := size - strings.LastIndex(t, ".")
	if d < 0 || d > 2 {
		return false
	}
	cn, ok := numericSegment(lastSegment(c))
	if !ok {
		return false
	}
	tn, ok := numericSegment(lastSegment(t))
	if !ok {
		return false
	}
	diff := cn - tn
	if diff < 0 {
		diff = -diff
	}
	return diff <= 2
}

func lastSegment(s string) string {
	return s[strings.LastIndex(s, ".")+1:]
}

func numericSegment(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LongestCommonSubstring returns the longest contiguous run shared by a and b as
// (offset in a, offset in b, length). Among equally long runs it picks the one
// starting earliest in a, then earliest in b. With no common byte it returns (0, 0, 0).
func LongestCommonSubstring(a, b string) (int, int, int) {
	var bestA, bestB, bestSize int
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				cur[j] = 0
				continue
			}
			cur[j] = prev[j-1] + 1
			if cur[j] > bestSize {
				bestSize = cur[j]
				bestA = i - cur[j]
				bestB = j - cur[j]
			}
		}
		prev, cur = cur, prev
	}
	return bestA, bestB, bestSize
}
