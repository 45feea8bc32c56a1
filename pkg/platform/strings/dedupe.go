// Package strings has the small slice-normalization helpers shared by the
// services.
package strings

import "strings"

// DedupeAndTrimLower trims, lowercases, and deduplicates a slice, dropping
// empties. First-occurrence order is kept so phone lists stay stable in
// audit detail output.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
