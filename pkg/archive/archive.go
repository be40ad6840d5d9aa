// Package archive provides random-access read of ZIP entries by path from
// in-memory bytes, and base-document discovery for scene bundles.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/NERVsystems/vectorscene/pkg/sceneerr"
)

// Entry describes one file stored in an archive.
type Entry struct {
	Path             string
	UncompressedSize uint64
}

// Reader indexes a ZIP archive held in memory for repeated entry lookups.
type Reader struct {
	zr      *zip.Reader
	byPath  map[string]*zip.File
	entries []Entry
}

// NewReader builds an index over the ZIP archive contained in data.
func NewReader(data []byte) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeArchive, "opening zip archive", err)
	}

	r := &Reader{
		zr:     zr,
		byPath: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		r.byPath[f.Name] = f
		r.entries = append(r.entries, Entry{
			Path:             f.Name,
			UncompressedSize: f.UncompressedSize64,
		})
	}
	return r, nil
}

// Entries returns the archive's entries in their original archive order.
func (r *Reader) Entries() []Entry {
	return r.entries
}

// Find looks up an entry by its exact archive path.
func (r *Reader) Find(path string) (Entry, bool) {
	f, ok := r.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return Entry{Path: f.Name, UncompressedSize: f.UncompressedSize64}, true
}

// Decompress reads and fully decompresses entry e's contents.
func (r *Reader) Decompress(e Entry) ([]byte, error) {
	f, ok := r.byPath[e.Path]
	if !ok {
		return nil, sceneerr.New(sceneerr.CodeArchive, fmt.Sprintf("entry %q not found", e.Path))
	}

	rc, err := f.Open()
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeArchive, fmt.Sprintf("opening entry %q", e.Path), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, sceneerr.Wrap(sceneerr.CodeArchive, fmt.Sprintf("decompressing entry %q", e.Path), err)
	}
	return data, nil
}

// BaseDocument returns the archive's base document: the first entry, in
// archive order, whose extension is yaml or yml and whose path contains no
// "/" separator.
func (r *Reader) BaseDocument() (Entry, bool) {
	for _, e := range r.entries {
		if strings.Contains(e.Path, "/") {
			continue
		}
		ext := extOf(e.Path)
		if ext == "yaml" || ext == "yml" {
			return e, true
		}
	}
	return Entry{}, false
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}
