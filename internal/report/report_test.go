package report

import (
	"strings"
	"testing"

	"codesig/internal/classify"
	"codesig/internal/hashdb"
	"codesig/internal/scan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() *scan.Run {
	run := &scan.Run{ID: "run-1", Stats: scan.Stats{Repos: 1, Units: 4, Accepted: 3, Rejected: 1, NoSignal: 1}}
	run.Summary.Add(classify.Verdict{FileName: "octo/app/a.py", Score: 0.2, Shared: []int{1}})
	run.Summary.Add(classify.Verdict{
		FileName:    "octo/app/b.py",
		Score:       0.8,
		Shared:      []int{0, 2, 3, 4},
		Flagged:     true,
		HashMatches: []hashdb.Match{{Algorithm: hashdb.SHA256, Signature: "PyStealer"}},
	})
	return run
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleRun(), 0.5)

	assert.Contains(t, md, "| 2 | 1 | 1 | 1 | 1 | 0 |")
	assert.Contains(t, md, "| `octo/app/a.py` | 0.200 | 1 | safe | - |")
	assert.Contains(t, md, "| `octo/app/b.py` | 0.800 | 0, 2, 3, 4 | **malicious** | sha256 (PyStealer) |")
	assert.Contains(t, md, "## Flagged\n\n- `octo/app/b.py`\n")
	assert.Less(t, strings.Index(md, "a.py"), strings.Index(md, "b.py"))
}

func TestMarkdownEmpty(t *testing.T) {
	md := Markdown(&scan.Run{}, 0.5)
	assert.Contains(t, md, "No files produced a cluster signature.")
	assert.NotContains(t, md, "## Files")
}

func TestRender(t *testing.T) {
	out, err := Render(Markdown(sampleRun(), 0.5), 120)
	require.NoError(t, err)
	assert.Contains(t, out, "octo/app/b.py")
}

func TestBanner(t *testing.T) {
	v := sampleRun().Summary.Details
	assert.Contains(t, Banner(v[0]), "SAFE")
	assert.Contains(t, Banner(v[1]), "MALICIOUS")
	assert.Contains(t, Banner(v[1]), "PyStealer")
	assert.NotContains(t, Banner(v[0]), "known hash")
}
