package report

import (
	"fmt"

	"codesig/internal/classify"

	"github.com/charmbracelet/lipgloss"
)

var (
	maliciousStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	safeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("78")).
			Padding(0, 1)

	hashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Banner is a one-line verdict for a single file.
func Banner(v classify.Verdict) string {
	label := safeStyle.Render("SAFE")
	if v.Flagged {
		label = maliciousStyle.Render("MALICIOUS")
	}
	line := fmt.Sprintf("%s %s %s", label, v.FileName, dimStyle.Render(fmt.Sprintf("score %.3f shared %s", v.Score, sharedList(v.Shared))))
	if len(v.HashMatches) > 0 {
		line += " " + hashStyle.Render("known hash: "+hashList(v))
	}
	return line
}
