// Package envcfg provides configuration loading, normalization and
// canonicalization for the training harness.
package envcfg

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`^-?\d+$`)
	floatPattern = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// NormalizeScalar coerces a raw string value into its typed form.
// It is the single normalization function used both when building the
// working configuration and when canonicalizing it; the two call sites
// must agree byte-for-byte or hashes stop being reproducible across
// processes.
//
// Rules, applied in order:
//  1. nil stays nil
//  2. whitespace is trimmed
//  3. empty string becomes nil
//  4. case-insensitive true/false/1/0/yes/no becomes bool
//  5. integer-looking string becomes int64
//  6. decimal-looking string becomes float64
//  7. a string containing "," becomes a deduplicated, sorted []string
//  8. anything else is the trimmed string itself
func NormalizeScalar(raw *string) any {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	if intPattern.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	if floatPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.Contains(s, ",") {
		return splitSortedUnique(s)
	}
	return s
}

// splitSortedUnique splits a comma-separated string into trimmed,
// non-empty, deduplicated, lexicographically sorted items.
func splitSortedUnique(s string) []string {
	seen := make(map[string]struct{})
	items := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		items = append(items, p)
	}
	sort.Strings(items)
	return items
}
