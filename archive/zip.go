package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// zipArchive reads entries from a ZIP file on demand.
type zipArchive struct {
	rc      *zip.ReadCloser
	entries []Entry
	files   map[string]*zip.File
}

var _ Archive = (*zipArchive)(nil)

func openZip(path string) (*zipArchive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	za := &zipArchive{
		rc:      rc,
		entries: make([]Entry, 0, len(rc.File)),
		files:   make(map[string]*zip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		name := normalizeName(f.Name)
		za.entries = append(za.entries, Entry{
			Name: name,
			Size: int64(f.UncompressedSize64),
			Dir:  f.FileInfo().IsDir(),
		})
		za.files[name] = f
	}
	return za, nil
}

func (za *zipArchive) Entries() []Entry {
	return za.entries
}

func (za *zipArchive) ReadEntry(name string) ([]byte, error) {
	f, ok := za.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (za *zipArchive) Close() error {
	return za.rc.Close()
}
