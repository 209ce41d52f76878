package walker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"codesig/internal/archive"
	"codesig/internal/logging"
	"codesig/internal/source"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves an in-memory tree. Directories map to their
// listing; files map to their bytes.
type fakeProvider struct {
	mu        sync.Mutex
	dirs      map[string][]source.Entry
	files     map[string][]byte
	listErr   map[string]error
	fetchErr  map[string]error
	fetchSeen []string
}

func (p *fakeProvider) List(_ context.Context, _, _, path string) ([]source.Entry, error) {
	if err := p.listErr[path]; err != nil {
		return nil, err
	}
	return p.dirs[path], nil
}

func (p *fakeProvider) Fetch(_ context.Context, e source.Entry) ([]byte, error) {
	p.mu.Lock()
	p.fetchSeen = append(p.fetchSeen, e.Path)
	p.mu.Unlock()
	if err := p.fetchErr[e.Path]; err != nil {
		return nil, err
	}
	return p.files[e.Path], nil
}

func file(path string) source.Entry { return source.Entry{Path: path, Type: source.TypeFile} }
func dir(path string) source.Entry  { return source.Entry{Path: path, Type: source.TypeDir} }

func tree() *fakeProvider {
	return &fakeProvider{
		dirs: map[string][]source.Entry{
			"":          {file("a.py"), dir("pkg"), file("z.py")},
			"pkg":       {file("pkg/b.py"), dir("pkg/inner"), file("pkg/c.py")},
			"pkg/inner": {file("pkg/inner/d.py")},
		},
		files: map[string][]byte{
			"a.py":           []byte("print('a')\n"),
			"z.py":           []byte("print('z')\n"),
			"pkg/b.py":       []byte("print('b')\n"),
			"pkg/c.py":       []byte("print('c')\n"),
			"pkg/inner/d.py": []byte("print('d')\n"),
		},
	}
}

func names(units []source.FileUnit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Name
	}
	return out
}

func TestWalkDepthFirstOrder(t *testing.T) {
	for _, workers := range []int{1, 8} {
		res := New(tree(), Options{Workers: workers}, nil).Walk(context.Background(), "octo", "demo", "")
		assert.Empty(t, res.Failures)
		assert.Equal(t, []string{"a.py", "pkg/b.py", "pkg/inner/d.py", "pkg/c.py", "z.py"}, names(res.Units), "workers=%d", workers)
		for _, u := range res.Units {
			assert.Equal(t, "octo", u.Owner)
			assert.Equal(t, "demo", u.Repo)
		}
	}
}

func TestWalkSubtreeListingFailure(t *testing.T) {
	p := tree()
	p.listErr = map[string]error{"pkg": errors.New("403 rate limited")}
	logger, logs := logging.NewObserved()

	res := New(p, Options{Workers: 2}, logger).Walk(context.Background(), "octo", "demo", "")
	assert.Equal(t, []string{"a.py", "z.py"}, names(res.Units))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ScopeList, res.Failures[0].Scope)
	assert.Equal(t, "pkg", res.Failures[0].Path)
	assert.Equal(t, 1, logs.FilterMessage("listing failed, skipping subtree").Len())
}

func TestWalkRootListingFailure(t *testing.T) {
	p := tree()
	p.listErr = map[string]error{"": errors.New("not found")}

	res := New(p, Options{}, nil).Walk(context.Background(), "octo", "gone", "")
	assert.Empty(t, res.Units)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ScopeList, res.Failures[0].Scope)
}

func TestWalkFetchFailureDropsOneFile(t *testing.T) {
	p := tree()
	p.fetchErr = map[string]error{"pkg/b.py": errors.New("connection reset")}

	res := New(p, Options{Workers: 4}, nil).Walk(context.Background(), "octo", "demo", "")
	assert.Equal(t, []string{"a.py", "pkg/inner/d.py", "pkg/c.py", "z.py"}, names(res.Units))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ScopeFetch, res.Failures[0].Scope)
	assert.Equal(t, "pkg/b.py", res.Failures[0].Path)
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWalkArchivesAndDecodeFailures(t *testing.T) {
	p := &fakeProvider{
		dirs: map[string][]source.Entry{
			"": {file("kit.zip"), file("broken.zip"), file("blob.bin"), file("run.py")},
		},
		files: map[string][]byte{
			"kit.zip":    zipOf(t, map[string]string{"src/payload.py": "import ctypes\n"}),
			"broken.zip": []byte("PK\x03\x04 this is not really a zip"),
			"blob.bin":   {0x00, 0x01, 0xFF, 0xFE, 0x00, 0x9C},
			"run.py":     []byte("import kit\n"),
		},
	}

	res := New(p, Options{Workers: 3}, nil).Walk(context.Background(), "evil", "kit", "")
	assert.Equal(t, []string{"kit.zip!src/payload.py", "run.py"}, names(res.Units))

	require.Len(t, res.Failures, 2)
	assert.Equal(t, ScopeArchive, res.Failures[0].Scope)
	assert.Equal(t, "broken.zip", res.Failures[0].Path)
	assert.ErrorIs(t, res.Failures[0].Err, archive.ErrCorrupt)
	assert.True(t, IsArchiveFailure(res.Failures[0].Err))

	assert.Equal(t, ScopeEntry, res.Failures[1].Scope)
	assert.Equal(t, "blob.bin", res.Failures[1].Path)
	assert.ErrorIs(t, res.Failures[1].Err, source.ErrNotText)
}

func TestWalkLogsArchiveFailureCategory(t *testing.T) {
	locked := zipOf(t, map[string]string{"a.py": "x = 1\n"})
	// Set the encryption bit in the local header and the central directory.
	for _, sig := range [][]byte{{'P', 'K', 3, 4}, {'P', 'K', 1, 2}} {
		i := bytes.Index(locked, sig)
		require.GreaterOrEqual(t, i, 0)
		flagOff := i + 6
		if sig[2] == 1 {
			flagOff = i + 8
		}
		locked[flagOff] |= 0x1
	}

	p := &fakeProvider{
		dirs: map[string][]source.Entry{"": {file("broken.zip"), file("locked.zip")}},
		files: map[string][]byte{
			"broken.zip": []byte("PK\x03\x04 this is not really a zip"),
			"locked.zip": locked,
		},
	}
	logger, logs := logging.NewObserved()
	res := New(p, Options{}, logger).Walk(context.Background(), "evil", "kit", "")
	require.Len(t, res.Failures, 2)

	got := map[string]string{}
	for _, entry := range logs.FilterMessage("archive unusable").All() {
		fields := entry.ContextMap()
		got[fields["path"].(string)] = fields["category"].(string)
	}
	assert.Equal(t, map[string]string{"broken.zip": "corrupt", "locked.zip": "encrypted"}, got)
}

func TestWalkStartsAtSubPath(t *testing.T) {
	res := New(tree(), Options{}, nil).Walk(context.Background(), "octo", "demo", "pkg/inner")
	assert.Equal(t, []string{"pkg/inner/d.py"}, names(res.Units))
}

func TestWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := tree()
	res := New(p, Options{}, nil).Walk(ctx, "octo", "demo", "")
	assert.Empty(t, res.Units)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, context.Canceled)
	assert.Empty(t, p.fetchSeen)
}
