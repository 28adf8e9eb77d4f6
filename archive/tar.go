package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// tarArchive holds the regular-file members of a tar stream in memory.
// Tar has no central directory, so members are indexed in a single pass on open.
type tarArchive struct {
	entries  []Entry
	contents map[string][]byte
}

var _ Archive = (*tarArchive)(nil)

func openTar(path string, compressed bool) (*tarArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		r = lz4.NewReader(f)
	}
	return readTar(r)
}

func readTar(r io.Reader) (*tarArchive, error) {
	ta := &tarArchive{contents: make(map[string][]byte)}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}

		name := normalizeName(hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			ta.entries = append(ta.entries, Entry{Name: name, Dir: true})
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			ta.entries = append(ta.entries, Entry{Name: name, Size: int64(len(data))})
			ta.contents[name] = data
		}
	}
	return ta, nil
}

func (ta *tarArchive) Entries() []Entry {
	return ta.entries
}

func (ta *tarArchive) ReadEntry(name string) ([]byte, error) {
	data, ok := ta.contents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return data, nil
}

func (ta *tarArchive) Close() error {
	ta.contents = nil
	return nil
}
