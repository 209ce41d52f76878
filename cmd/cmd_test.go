package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codesig/internal/classify"
	"codesig/internal/cluster"
	"codesig/internal/filter"
	"codesig/internal/hashdb"
	"codesig/internal/scan"
	"codesig/internal/signature"
	"codesig/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.txt")
	require.NoError(t, os.WriteFile(path, []byte("octo/tools\nacme/lib\n"), 0o644))

	got, err := resolveRepos([]string{"acme/lib", "new/one/src"}, path)
	require.NoError(t, err)
	assert.Equal(t, []source.RepoRef{
		{Owner: "octo", Name: "tools"},
		{Owner: "acme", Name: "lib"},
		{Owner: "new", Name: "one", Path: "src"},
	}, got)
}

func TestResolveReposEmpty(t *testing.T) {
	_, err := resolveRepos(nil, "")
	assert.ErrorIs(t, err, errNoRepos)

	_, err = resolveRepos([]string{"justowner"}, "")
	assert.Error(t, err)
}

func TestFormatReferenceInfo(t *testing.T) {
	ref := signature.Table{Rows: []signature.Row{{ID: "a#0", Cluster: 1}, {ID: "a#1", Cluster: 0}}}
	out := formatReferenceInfo("ref.db", map[string]string{
		signature.MetaEmbeddingModel: "nomic-embed-text",
		signature.MetaBuiltAt:        "2026-01-01T00:00:00Z",
	}, ref)

	assert.Contains(t, out, "Reference: ref.db")
	assert.Contains(t, out, "nomic-embed-text")
	assert.Contains(t, out, "[0 1]")
	assert.Less(t, strings.Index(out, "built_at"), strings.Index(out, "embedding_model"))
}

func TestFormatCheckResult(t *testing.T) {
	unit := source.FileUnit{Owner: "local", Repo: "file", Name: "x.py"}

	rejected := scan.FileResult{Unit: unit, Status: scan.StatusRejected, Reason: filter.ReasonLanguage}
	assert.Contains(t, formatCheckResult(rejected), "not analysed")
	assert.Contains(t, describeResult(rejected), "skipped")

	noSignal := scan.FileResult{Unit: unit, Status: scan.StatusNoSignal}
	assert.Contains(t, formatCheckResult(noSignal), "no cluster signature")

	flagged := scan.FileResult{Unit: unit, Status: scan.StatusClustered, Verdict: classify.Verdict{
		FileName:    "local/file/x.py",
		Score:       0.75,
		Shared:      []int{0, 1, 2},
		Flagged:     true,
		HashMatches: []hashdb.Match{{Algorithm: hashdb.MD5, Hash: "abc", Signature: "Stealer"}},
	}}
	out := formatCheckResult(flagged)
	assert.Contains(t, out, "**malicious**")
	assert.Contains(t, out, "0.750")
	assert.Contains(t, out, "Known md5 hash `abc` (Stealer)")
	assert.Contains(t, describeResult(flagged), "MALICIOUS")
}

func TestFormatPlots(t *testing.T) {
	run := &scan.Run{Files: []scan.FileResult{
		{Unit: source.FileUnit{Owner: "o", Repo: "r", Name: "a.py"}, Outcome: cluster.Outcome{K: 2, Inertias: []float64{100, 40, 30}}},
		{Unit: source.FileUnit{Owner: "o", Repo: "r", Name: "b.py"}, Outcome: cluster.Outcome{K: 3}},
	}}
	out := formatPlots(run)
	assert.Contains(t, out, "o/r/a.py (k=2)")
	assert.NotContains(t, out, "b.py")
}
