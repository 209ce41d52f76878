package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"codesig/internal/source"

	"github.com/klauspost/compress/gzip"
)

// ExpandTarGz reads every regular file of a gzip-compressed tar stream. A
// gzip stream that does not hold a tar archive is treated as one
// compressed file. Any stream error, including truncation after some
// members were read, fails the whole archive with ErrCorrupt.
func ExpandTarGz(raw []byte, owner, repo, name string, opts Options) Result {
	c := &collector{owner: owner, repo: repo, archive: name}
	limit := opts.maxEntrySize()

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	defer gz.Close()

	// Tar headers are 512-byte blocks; buffer the head so a non-tar stream
	// can be re-read as a single file.
	head := make([]byte, 512)
	n, err := io.ReadFull(gz, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return c.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	head = head[:n]
	stream := io.MultiReader(bytes.NewReader(head), gz)

	if !looksLikeTar(head) {
		data, err := readLimited(stream, limit)
		if err != nil {
			return c.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
		}
		text, derr := source.DecodeText(data)
		if derr != nil {
			c.skip(singleName(name), SkipDecode, derr)
			return c.res
		}
		c.res.Units = append(c.res.Units, source.FileUnit{Owner: owner, Repo: repo, Name: singleName(name), Content: text})
		return c.res
	}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			// Drain to the gzip trailer so its checksum is verified.
			if _, err := io.Copy(io.Discard, stream); err != nil {
				return c.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
			}
			break
		}
		if err != nil {
			return c.fail(fmt.Errorf("%w: %v", ErrCorrupt, err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > limit {
			c.skip(hdr.Name, SkipTooLarge, fmt.Errorf("%d bytes exceeds %d", hdr.Size, limit))
			continue
		}
		// Member data comes straight off the gzip stream, so a read error
		// here is a truncated or damaged container.
		data, err := readLimited(tr, limit)
		if err != nil {
			return c.fail(fmt.Errorf("%w: %s: %v", ErrCorrupt, hdr.Name, err))
		}
		c.add(hdr.Name, data)
	}
	return c.res
}

// looksLikeTar checks the ustar magic at offset 257 or, for old v7 tars, a
// parseable header checksum.
func looksLikeTar(head []byte) bool {
	if len(head) < 512 {
		return false
	}
	if bytes.HasPrefix(head[257:], []byte("ustar")) {
		return true
	}
	_, err := tar.NewReader(bytes.NewReader(head)).Next()
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// singleName strips the compression suffix from a standalone gzip file.
func singleName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tgz"):
		return name[:len(name)-len(".tgz")] + ".tar"
	case strings.HasSuffix(lower, ".gz"):
		return name[:len(name)-len(".gz")]
	}
	return name
}
