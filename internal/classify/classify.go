// Package classify turns similarity scores into verdicts and collects the
// run summary.
package classify

import (
	"codesig/internal/hashdb"
)

// DefaultThreshold is the score a file must exceed to be flagged.
const DefaultThreshold = 0.5

// Flag reports whether score is strictly above threshold.
func Flag(score, threshold float64) bool {
	return score > threshold
}

// Verdict is the classification of one file.
type Verdict struct {
	FileName string  `json:"file_name"`
	Score    float64 `json:"score"`
	Shared   []int   `json:"shared"`
	Flagged  bool    `json:"flagged"`
	// HashMatches lists known-malware hash hits; they do not affect Flagged.
	HashMatches []hashdb.Match `json:"hash_matches,omitempty"`
}

// Summary aggregates verdicts in processing order.
type Summary struct {
	Total   int       `json:"total"`
	Flagged int       `json:"flagged"`
	Safe    int       `json:"safe"`
	Details []Verdict `json:"details"`
}

// Add appends v and updates the counts.
func (s *Summary) Add(v Verdict) {
	s.Total++
	if v.Flagged {
		s.Flagged++
	} else {
		s.Safe++
	}
	s.Details = append(s.Details, v)
}

// FlaggedFiles returns the names of flagged files in order.
func (s *Summary) FlaggedFiles() []string {
	var out []string
	for _, v := range s.Details {
		if v.Flagged {
			out = append(out, v.FileName)
		}
	}
	return out
}
