package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/poiesic/docloader/core"
)

// ErrEntryNotFound is returned when an entry name is not present in the archive.
var ErrEntryNotFound = errors.New("archive entry not found")

// Entry describes one member of an archive.
type Entry struct {
	Name string // path inside the archive, '/' separated
	Size int64  // uncompressed size in bytes
	Dir  bool
}

// Archive is a read-only container of named byte blobs.
type Archive interface {
	// Entries lists the archive members in container order.
	Entries() []Entry

	// ReadEntry returns the full contents of the named entry.
	ReadEntry(name string) ([]byte, error)

	// Close releases the underlying file.
	Close() error
}

// Open opens the archive at path, picking the reader from the file extension.
// Supported: .zip, .tar, .tar.lz4 and .tlz4.
// Any failure is wrapped with core.ErrArchiveUnreadable.
func Open(path string) (Archive, error) {
	var (
		a   Archive
		err error
	)
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		a, err = openZip(path)
	case strings.HasSuffix(lower, ".tar.lz4"), strings.HasSuffix(lower, ".tlz4"):
		a, err = openTar(path, true)
	case strings.HasSuffix(lower, ".tar"):
		a, err = openTar(path, false)
	default:
		err = fmt.Errorf("unsupported archive extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrArchiveUnreadable, path, err)
	}
	return a, nil
}

// normalizeName converts an entry name to the '/' separated form used for grouping.
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(name, "./")
}

// GroupOf returns the source group of an entry: its top-level directory, or
// core.RootGroup for entries stored at the archive root.
func GroupOf(entryName string) string {
	parts := strings.SplitN(normalizeName(entryName), "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return core.RootGroup
	}
	return parts[0]
}
