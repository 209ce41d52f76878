package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name string
	data []byte
	dir  bool
}

func buildZip(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		name := m.name
		if m.dir {
			name += "/"
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		if !m.dir {
			_, err = w.Write(m.data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildTarGz(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, m := range members {
		if m.dir {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: m.name + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: m.name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(m.data))}))
		_, err := tw.Write(m.data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExpandZipSkipsUndecodableEntry(t *testing.T) {
	raw := buildZip(t, []member{
		{name: "src", dir: true},
		{name: "src/good.py", data: []byte("import os\nos.remove('x')\n")},
		{name: "src/bad.py", data: []byte{'p', 0xC3, 0x28, 0xFF}},
	})

	res := ExpandZip(raw, "acme", "tools", "payload.zip", Options{})

	require.NoError(t, res.Err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "payload.zip!src/good.py", res.Units[0].Name)
	assert.Equal(t, "acme", res.Units[0].Owner)
	assert.Equal(t, "tools", res.Units[0].Repo)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "src/bad.py", res.Skipped[0].Name)
	assert.Equal(t, SkipDecode, res.Skipped[0].Category)
}

func TestExpandZipCorrupt(t *testing.T) {
	res := ExpandZip([]byte("PK\x03\x04 definitely not a zip"), "o", "r", "x.zip", Options{})
	assert.ErrorIs(t, res.Err, ErrCorrupt)
	assert.Empty(t, res.Units)
}

func TestExpandZipEncrypted(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "secret.py", Method: zip.Store, Flags: flagEncrypted})
	require.NoError(t, err)
	_, err = w.Write([]byte("ciphertext"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res := ExpandZip(buf.Bytes(), "o", "r", "locked.zip", Options{})
	assert.ErrorIs(t, res.Err, ErrEncrypted)
	assert.Empty(t, res.Units)
}

func TestExpandZipEntryTooLarge(t *testing.T) {
	raw := buildZip(t, []member{
		{name: "big.py", data: bytes.Repeat([]byte("a"), 64)},
		{name: "small.py", data: []byte("x = 1")},
	})

	res := ExpandZip(raw, "o", "r", "a.zip", Options{MaxEntrySize: 16})
	require.NoError(t, res.Err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "a.zip!small.py", res.Units[0].Name)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipTooLarge, res.Skipped[0].Category)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestExpandZipUnsupportedMethod(t *testing.T) {
	const methodUnknown = 99
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(methodUnknown, func(w io.Writer) (io.WriteCloser, error) {
		return nopWriteCloser{w}, nil
	})
	w, err := zw.Create("ok.py")
	require.NoError(t, err)
	_, err = w.Write([]byte("print('ok')"))
	require.NoError(t, err)
	w, err = zw.CreateHeader(&zip.FileHeader{Name: "odd.py", Method: methodUnknown})
	require.NoError(t, err)
	_, err = w.Write([]byte("print('odd')"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res := ExpandZip(buf.Bytes(), "o", "r", "mixed.zip", Options{})
	assert.ErrorIs(t, res.Err, ErrUnsupported)
	assert.Empty(t, res.Units)
}

func TestExpandTarGz(t *testing.T) {
	raw := buildTarGz(t, []member{
		{name: "pkg", dir: true},
		{name: "pkg/a.py", data: []byte("print('a')")},
		{name: "pkg/b.bin", data: []byte{0, 1, 2, 3}},
		{name: "pkg/c.py", data: []byte("print('c')")},
	})

	res := ExpandTarGz(raw, "o", "r", "dist/pkg.tar.gz", Options{})
	require.NoError(t, res.Err)
	require.Len(t, res.Units, 2)
	assert.Equal(t, "dist/pkg.tar.gz!pkg/a.py", res.Units[0].Name)
	assert.Equal(t, "dist/pkg.tar.gz!pkg/c.py", res.Units[1].Name)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "pkg/b.bin", res.Skipped[0].Name)
}

func TestExpandBareGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("def run():\n    pass\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	res := ExpandTarGz(buf.Bytes(), "o", "r", "tools/run.py.gz", Options{})
	require.NoError(t, res.Err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, "tools/run.py", res.Units[0].Name)
	assert.Contains(t, res.Units[0].Content, "def run")
}

func TestExpandTarGzCorrupt(t *testing.T) {
	res := ExpandTarGz([]byte{0x1f, 0x8b, 0x00, 0x01}, "o", "r", "bad.tgz", Options{})
	assert.ErrorIs(t, res.Err, ErrCorrupt)
	assert.Empty(t, res.Units)
}

func letters(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, 1))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('a' + rng.IntN(26))
	}
	return out
}

func TestExpandTarGzTruncated(t *testing.T) {
	raw := buildTarGz(t, []member{
		{name: "a.py", data: letters(1, 4096)},
		{name: "b.py", data: letters(2, 4096)},
	})
	cut := raw[:len(raw)*3/4]

	res := ExpandTarGz(cut, "o", "r", "x.tar.gz", Options{})
	assert.ErrorIs(t, res.Err, ErrCorrupt)
	assert.Empty(t, res.Units)
}

func TestExpandTarGzBadChecksum(t *testing.T) {
	raw := buildTarGz(t, []member{{name: "a.py", data: []byte("print('a')")}})
	// The gzip trailer ends with CRC32 then ISIZE.
	raw[len(raw)-8] ^= 0xFF

	res := ExpandTarGz(raw, "o", "r", "x.tar.gz", Options{})
	assert.ErrorIs(t, res.Err, ErrCorrupt)
	assert.Empty(t, res.Units)
}

func read7z(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestExpand7z(t *testing.T) {
	res := Expand7z(read7z(t, "plain.7z"), "o", "r", "drop/plain.7z", Options{})
	require.NoError(t, res.Err)
	require.Len(t, res.Units, 2)
	assert.Equal(t, "drop/plain.7z!bar", res.Units[0].Name)
	assert.Equal(t, "bar\n", res.Units[0].Content)
	assert.Equal(t, "drop/plain.7z!foo", res.Units[1].Name)
	assert.Equal(t, "foo\n", res.Units[1].Content)
	assert.Empty(t, res.Skipped)
}

func TestExpand7zEntryTooLarge(t *testing.T) {
	res := Expand7z(read7z(t, "plain.7z"), "o", "r", "plain.7z", Options{MaxEntrySize: 3})
	require.NoError(t, res.Err)
	assert.Empty(t, res.Units)
	require.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.Equal(t, SkipTooLarge, s.Category)
	}
}

func TestExpand7zEncrypted(t *testing.T) {
	res := Expand7z(read7z(t, "locked.7z"), "o", "r", "locked.7z", Options{})
	assert.ErrorIs(t, res.Err, ErrEncrypted)
	assert.Empty(t, res.Units)
}

func TestExpand7zCorrupt(t *testing.T) {
	raw := append([]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}, bytes.Repeat([]byte{0x42}, 64)...)
	res := Expand7z(raw, "o", "r", "bad.7z", Options{})
	require.Error(t, res.Err)
	assert.Empty(t, res.Units)
}

func TestClassify7zErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "encrypted read error", err: &sevenzip.ReadError{Encrypted: true, Err: errors.New("checksum mismatch")}, want: ErrEncrypted},
		{name: "password message", err: errors.New("sevenzip: wrong password"), want: ErrEncrypted},
		{name: "unsupported codec", err: errors.New("sevenzip: unsupported compression algorithm"), want: ErrUnsupported},
		{name: "anything else", err: errors.New("sevenzip: not a valid 7-zip file"), want: ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify7zErr(tt.err), tt.want)
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		file string
		raw  []byte
		want Format
	}{
		{name: "zip extension", file: "a.ZIP", want: FormatZip},
		{name: "tgz extension", file: "a.tgz", want: FormatTarGz},
		{name: "tar.gz extension", file: "a.tar.gz", want: FormatTarGz},
		{name: "7z extension", file: "a.7z", want: FormatSevenZip},
		{name: "zip magic", file: "blob", raw: []byte("PK\x03\x04rest"), want: FormatZip},
		{name: "gzip magic", file: "blob", raw: []byte{0x1f, 0x8b, 8}, want: FormatTarGz},
		{name: "7z magic", file: "blob", raw: []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C, 0}, want: FormatSevenZip},
		{name: "plain", file: "main.py", raw: []byte("print(1)"), want: FormatPlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.file, tt.raw))
		})
	}
}

func TestExpandPlain(t *testing.T) {
	res := Expand([]byte("x = 1"), FormatPlain, "o", "r", "x.py", Options{})
	require.Len(t, res.Units, 1)
	assert.Equal(t, "x.py", res.Units[0].Name)

	res = Expand([]byte{'a', 0xC3, 0x28}, FormatPlain, "o", "r", "x.bin", Options{})
	assert.Empty(t, res.Units)
	require.Len(t, res.Skipped, 1)
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "encrypted", Category(fmt.Errorf("%w: entry a.py", ErrEncrypted)))
	assert.Equal(t, "unsupported", Category(fmt.Errorf("%w: method 99", ErrUnsupported)))
	assert.Equal(t, "corrupt", Category(fmt.Errorf("%w: unexpected EOF", ErrCorrupt)))
	assert.Empty(t, Category(errors.New("boom")))
	assert.Empty(t, Category(nil))
}
