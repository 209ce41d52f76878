// Package report formats scan results for the terminal.
package report

import (
	"fmt"
	"strings"

	"codesig/internal/classify"
	"codesig/internal/scan"

	"github.com/charmbracelet/glamour"
)

// Markdown renders a run as a markdown document: counts, one row per
// file in processing order, then the flagged files.
func Markdown(run *scan.Run, threshold float64) string {
	var b strings.Builder
	s := run.Summary

	b.WriteString("# Scan report\n\n")
	if run.ID != "" {
		fmt.Fprintf(&b, "Run `%s`, threshold **%.2f**\n\n", run.ID, threshold)
	}

	b.WriteString("| Files | Malicious | Safe | Rejected | No signal | Failures |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n",
		s.Total, s.Flagged, s.Safe, run.Stats.Rejected, run.Stats.NoSignal, run.Stats.Failures)

	if s.Total == 0 {
		b.WriteString("No files produced a cluster signature.\n")
		return b.String()
	}

	b.WriteString("## Files\n\n")
	b.WriteString("| File | Score | Shared clusters | Verdict | Known hash |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, v := range s.Details {
		fmt.Fprintf(&b, "| `%s` | %.3f | %s | %s | %s |\n",
			v.FileName, v.Score, sharedList(v.Shared), verdictWord(v), hashList(v))
	}

	if flagged := s.FlaggedFiles(); len(flagged) > 0 {
		b.WriteString("\n## Flagged\n\n")
		for _, f := range flagged {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

func sharedList(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

func verdictWord(v classify.Verdict) string {
	if v.Flagged {
		return "**malicious**"
	}
	return "safe"
}

func hashList(v classify.Verdict) string {
	if len(v.HashMatches) == 0 {
		return "-"
	}
	parts := make([]string, len(v.HashMatches))
	for i, m := range v.HashMatches {
		parts[i] = m.Algorithm
		if m.Signature != "" {
			parts[i] += " (" + m.Signature + ")"
		}
	}
	return strings.Join(parts, ", ")
}

// Render renders markdown for a terminal of the given width.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}
