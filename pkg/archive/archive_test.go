package archive

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildZip(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%q) failed: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("Write(%q) failed: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close failed: %v", err)
	}
	return buf.Bytes()
}

func TestEntriesAndFind(t *testing.T) {
	files := map[string]string{
		"scene.yaml":    "scene: {}",
		"img/x.png":     "pngdata",
		"nested/a.yaml": "a: 1",
	}
	order := []string{"scene.yaml", "img/x.png", "nested/a.yaml"}
	data := buildZip(t, files, order)

	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Path != order[i] {
			t.Errorf("entries[%d].Path = %q, want %q (archive order must be preserved)", i, e.Path, order[i])
		}
	}

	e, ok := r.Find("img/x.png")
	if !ok {
		t.Fatal("Find(img/x.png) not found")
	}
	if e.UncompressedSize != uint64(len("pngdata")) {
		t.Errorf("UncompressedSize = %d, want %d", e.UncompressedSize, len("pngdata"))
	}

	if _, ok := r.Find("missing.yaml"); ok {
		t.Error("Find(missing.yaml) should not be found")
	}
}

func TestDecompress(t *testing.T) {
	files := map[string]string{"style.yaml": "styles: { base: {} }"}
	data := buildZip(t, files, []string{"style.yaml"})

	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	e, _ := r.Find("style.yaml")
	got, err := r.Decompress(e)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(got) != files["style.yaml"] {
		t.Errorf("Decompress = %q, want %q", got, files["style.yaml"])
	}
}

func TestBaseDocument(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		order     []string
		wantPath  string
		wantFound bool
	}{
		{
			name:      "root yaml chosen first",
			files:     map[string]string{"img/x.png": "p", "root.yaml": "a: 1", "other.yml": "b: 2"},
			order:     []string{"img/x.png", "root.yaml", "other.yml"},
			wantPath:  "root.yaml",
			wantFound: true,
		},
		{
			name:      "nested yaml is not a base document",
			files:     map[string]string{"nested/scene.yaml": "a: 1"},
			order:     []string{"nested/scene.yaml"},
			wantFound: false,
		},
		{
			name:      "yml extension accepted",
			files:     map[string]string{"scene.yml": "a: 1"},
			order:     []string{"scene.yml"},
			wantPath:  "scene.yml",
			wantFound: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := buildZip(t, tc.files, tc.order)
			r, err := NewReader(data)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			e, ok := r.BaseDocument()
			if ok != tc.wantFound {
				t.Fatalf("BaseDocument found = %v, want %v", ok, tc.wantFound)
			}
			if ok && e.Path != tc.wantPath {
				t.Errorf("BaseDocument path = %q, want %q", e.Path, tc.wantPath)
			}
		})
	}
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	if _, err := NewReader([]byte("not a zip file")); err == nil {
		t.Error("expected error for invalid zip data")
	}
}
