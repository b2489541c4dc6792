// Package aggregate merges per-block insights into a file-level list.
package aggregate

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/insights-cli/internal/model"
)

// DefaultFileCap bounds the insights returned for one file.
const DefaultFileCap = 60

// Aggregate flattens perBlock in order, keeps the first insight for each
// quote key, and truncates to fileCap (DefaultFileCap when not positive).
// The result is never nil.
func Aggregate(perBlock [][]model.Insight, fileCap int) []model.Insight {
	if fileCap <= 0 {
		fileCap = DefaultFileCap
	}

	out := []model.Insight{}
	seen := make(map[string]bool)
	for _, block := range perBlock {
		for _, ins := range block {
			key := DedupKey(ins.Quote)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ins)
			if len(out) == fileCap {
				return out
			}
		}
	}
	return out
}

// DedupKey normalizes a quote for duplicate detection: NFC composition,
// collapsed whitespace, lower case.
func DedupKey(quote string) string {
	s := norm.NFC.String(quote)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
