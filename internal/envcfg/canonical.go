package envcfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonical projects a configuration to its identity-relevant subset with
// every value in canonical form:
//
//   - nil and empty values become JSON null
//   - lists become deduplicated, lexicographically sorted string arrays
//   - bools pass through
//   - everything else passes through unchanged
//
// Two configurations that are identity-equivalent after normalization
// produce equal maps here, and therefore byte-identical canonical JSON.
// Platform-only fields never appear in the projection.
func Canonical(cfg *PlatformConfig) map[string]any {
	out := make(map[string]any, len(Fields))
	for _, f := range Fields {
		if !f.Identity {
			continue
		}
		out[f.Name] = canonicalValue(f.ops.value(cfg))
	}
	return out
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return t
	case bool:
		return t
	case []string:
		if len(t) == 0 {
			return nil
		}
		return dedupSortStrings(t)
	case []int64:
		if len(t) == 0 {
			return nil
		}
		items := make([]string, 0, len(t))
		for _, n := range t {
			items = append(items, strconv.FormatInt(n, 10))
		}
		return dedupSortStrings(items)
	default:
		return t
	}
}

func dedupSortStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CanonicalJSON serializes a canonical map with sorted keys, no
// insignificant whitespace and no HTML escaping. Re-serializing an
// already-canonical map yields the same bytes.
func CanonicalJSON(canonical map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonical); err != nil {
		return "", fmt.Errorf("failed to serialize canonical config: %w", err)
	}
	// Encode appends a trailing newline; the hash input must not carry it.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// formatFloat renders a float the way the canonical JSON encoder does, so
// string coercions of decimal tokens stay consistent with hashed output.
func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
