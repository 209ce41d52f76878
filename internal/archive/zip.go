package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// flagEncrypted is bit 0 of the general purpose flag.
const flagEncrypted = 0x1

// ExpandZip reads every regular file of a zip archive.
func ExpandZip(raw []byte, owner, repo, name string, opts Options) Result {
	c := &collector{owner: owner, repo: repo, archive: name}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return c.fail(classifyZipErr(err))
	}

	for _, f := range zr.File {
		if f.Flags&flagEncrypted != 0 {
			return c.fail(fmt.Errorf("%w: entry %s", ErrEncrypted, f.Name))
		}
	}

	limit := opts.maxEntrySize()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if int64(f.UncompressedSize64) > limit {
			c.skip(f.Name, SkipTooLarge, fmt.Errorf("%d bytes exceeds %d", f.UncompressedSize64, limit))
			continue
		}
		data, err := readZipEntry(f, limit)
		if err != nil {
			if errors.Is(err, zip.ErrAlgorithm) {
				return c.fail(fmt.Errorf("%w: entry %s method %d", ErrUnsupported, f.Name, f.Method))
			}
			c.skip(f.Name, SkipRead, err)
			continue
		}
		c.add(f.Name, data)
	}
	return c.res
}

func readZipEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, limit)
}

func classifyZipErr(err error) error {
	if errors.Is(err, zip.ErrAlgorithm) {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

// readLimited reads at most limit bytes and fails if more are available.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry exceeds %d bytes", limit)
	}
	return data, nil
}
