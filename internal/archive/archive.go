// Package archive expands container files found in a repository into text
// file units. Failures are returned as values: a broken entry is skipped,
// a broken container yields no units, and nothing panics or aborts the
// caller's batch.
package archive

import (
	"bytes"
	"errors"
	"path"
	"strings"

	"codesig/internal/source"
)

// Format is a recognised container format.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatZip      Format = "zip"
	FormatTarGz    Format = "tar.gz"
	FormatSevenZip Format = "7z"
)

// Whole-archive failure categories.
var (
	ErrCorrupt     = errors.New("corrupt archive")
	ErrEncrypted   = errors.New("password-protected archive")
	ErrUnsupported = errors.New("unsupported compression method")
)

// Category names the whole-archive failure class of err: "encrypted",
// "unsupported" or "corrupt". It returns "" for any other error.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrEncrypted):
		return "encrypted"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	}
	return ""
}

// Per-entry skip categories.
const (
	SkipDecode   = "decode"
	SkipRead     = "read"
	SkipTooLarge = "too_large"
)

// DefaultMaxEntrySize caps the uncompressed size of a single member.
const DefaultMaxEntrySize = 8 << 20

// EntryError records why one archive member was skipped.
type EntryError struct {
	Name     string
	Category string
	Err      error
}

// Result is the outcome of expanding one archive. When Err is set the
// archive was unusable as a whole and Units is empty.
type Result struct {
	Units   []source.FileUnit
	Skipped []EntryError
	Err     error
}

// Options controls expansion limits.
type Options struct {
	MaxEntrySize int64
}

func (o Options) maxEntrySize() int64 {
	if o.MaxEntrySize <= 0 {
		return DefaultMaxEntrySize
	}
	return o.MaxEntrySize
}

var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicGzip     = []byte{0x1f, 0x8b}
	magic7z       = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
)

// Detect classifies a file by extension first, then by magic bytes.
func Detect(name string, raw []byte) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".gz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZip
	}

	switch {
	case bytes.HasPrefix(raw, magicZip), bytes.HasPrefix(raw, magicZipEmpty):
		return FormatZip
	case bytes.HasPrefix(raw, magicGzip):
		return FormatTarGz
	case bytes.HasPrefix(raw, magic7z):
		return FormatSevenZip
	}
	return FormatPlain
}

// IsArchive reports whether f is a container format.
func (f Format) IsArchive() bool {
	return f == FormatZip || f == FormatTarGz || f == FormatSevenZip
}

// Expand dispatches raw to the expander for format. name is the archive's
// path within the repository; member units are named "<name>!<member>".
func Expand(raw []byte, format Format, owner, repo, name string, opts Options) Result {
	switch format {
	case FormatZip:
		return ExpandZip(raw, owner, repo, name, opts)
	case FormatTarGz:
		return ExpandTarGz(raw, owner, repo, name, opts)
	case FormatSevenZip:
		return Expand7z(raw, owner, repo, name, opts)
	}
	text, err := source.DecodeText(raw)
	if err != nil {
		return Result{Skipped: []EntryError{{Name: name, Category: SkipDecode, Err: err}}}
	}
	return Result{Units: []source.FileUnit{{Owner: owner, Repo: repo, Name: name, Content: text}}}
}

// collector accumulates units and skips for one archive.
type collector struct {
	owner, repo, archive string
	res                  Result
}

func (c *collector) add(member string, raw []byte) {
	text, err := source.DecodeText(raw)
	if err != nil {
		c.skip(member, SkipDecode, err)
		return
	}
	c.res.Units = append(c.res.Units, source.FileUnit{
		Owner:   c.owner,
		Repo:    c.repo,
		Name:    memberName(c.archive, member),
		Content: text,
	})
}

func (c *collector) skip(member, category string, err error) {
	c.res.Skipped = append(c.res.Skipped, EntryError{Name: member, Category: category, Err: err})
}

func (c *collector) fail(err error) Result {
	return Result{Skipped: c.res.Skipped, Err: err}
}

func memberName(archive, member string) string {
	return archive + "!" + path.Clean("/" + member)[1:]
}
