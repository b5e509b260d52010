// Package strings splits the comma-separated lists accepted by query
// parameters and environment variables.
package strings

import (
	"strings"
)

// SplitList splits raw on commas, trims each element and drops empties and
// repeats. Order of first appearance is preserved.
//
//	SplitList(" created, deleted,,created ")
//	// []string{"created", "deleted"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// DedupeAndTrim removes duplicates and empty strings from values after
// trimming whitespace. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
