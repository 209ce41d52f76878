package archive

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bodgit/sevenzip"
)

// Expand7z reads every regular file of a 7z archive. Encrypted archives and
// archives using an unsupported codec are rejected as a whole with
// ErrEncrypted or ErrUnsupported respectively.
func Expand7z(raw []byte, owner, repo, name string, opts Options) Result {
	c := &collector{owner: owner, repo: repo, archive: name}
	limit := opts.maxEntrySize()

	zr, err := sevenzip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return c.fail(classify7zErr(err))
	}

	for _, f := range zr.File {
		info := f.FileInfo()
		if info.IsDir() {
			continue
		}
		if info.Size() > limit {
			c.skip(f.Name, SkipTooLarge, fmt.Errorf("%d bytes exceeds %d", info.Size(), limit))
			continue
		}
		data, err := read7zEntry(f, limit)
		if err != nil {
			werr := classify7zErr(err)
			if errors.Is(werr, ErrEncrypted) || errors.Is(werr, ErrUnsupported) {
				return c.fail(werr)
			}
			c.skip(f.Name, SkipRead, err)
			continue
		}
		c.add(f.Name, data)
	}
	return c.res
}

func read7zEntry(f *sevenzip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, limit)
}

func classify7zErr(err error) error {
	var rerr *sevenzip.ReadError
	if errors.As(err, &rerr) && rerr.Encrypted {
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"), strings.Contains(msg, "encrypt"):
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	case strings.Contains(msg, "unsupported compression"), strings.Contains(msg, "unsupported method"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}
