package archive

import (
	"archive/tar"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/pierrec/lz4/v4"
)

// FixtureEntry is one member written by WriteZip and WriteTar.
// A name ending in "/" produces a directory entry.
type FixtureEntry struct {
	Name string
	Data string
}

// WriteZip writes entries to a new ZIP file at path, in order.
// Intended for tests and fixtures.
func WriteZip(path string, entries []FixtureEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.Data); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// WriteTar writes entries to a new tar file at path, LZ4-compressed when compress is set.
// Intended for tests and fixtures.
func WriteTar(path string, entries []FixtureEntry, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var lw *lz4.Writer
	if compress {
		lw = lz4.NewWriter(f)
		w = lw
	}

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Data)), Typeflag: tar.TypeReg}
		if len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/' {
			hdr = &tar.Header{Name: e.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Data); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if lw != nil {
		if err := lw.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}
