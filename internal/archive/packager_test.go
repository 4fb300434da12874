package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"index.html":        "<html>hello docs</html>",
		"static/style.css":  "body { margin: 0; }",
		"static/logo.png":   "not-really-a-png-but-stored-verbatim",
		"nested/sub/a.html": "<html>nested page</html>",
	}
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestPackAndInflateSegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	packed, err := Pack(dir)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	want := map[string]string{
		"index.html":        "<html>hello docs</html>",
		"static/style.css":  "body { margin: 0; }",
		"static/logo.png":   "not-really-a-png-but-stored-verbatim",
		"nested/sub/a.html": "<html>nested page</html>",
	}
	if len(packed.Index.Entries) != len(want) {
		t.Fatalf("got %d index entries, want %d", len(packed.Index.Entries), len(want))
	}

	for rel, content := range want {
		entry, ok := packed.Index.Lookup(rel)
		if !ok {
			t.Fatalf("missing index entry for %s", rel)
		}
		if entry.UncompressedSize != int64(len(content)) {
			t.Errorf("%s: UncompressedSize = %d, want %d", rel, entry.UncompressedSize, len(content))
		}
		segment := extractCompressedSegment(t, packed.ArchiveBytes, rel)
		got, err := InflateSegment(entry.Method, segment, entry.UncompressedSize)
		if err != nil {
			t.Fatalf("InflateSegment(%s): %v", rel, err)
		}
		if string(got) != content {
			t.Errorf("%s: inflated = %q, want %q", rel, got, content)
		}
	}

	// logo.png is an already-compressed extension, so the packager stores it
	// verbatim rather than deflating it.
	logoEntry, _ := packed.Index.Lookup("static/logo.png")
	if logoEntry.Method != uint16(zip.Store) {
		t.Errorf("static/logo.png Method = %d, want zip.Store (%d)", logoEntry.Method, zip.Store)
	}
	htmlEntry, _ := packed.Index.Lookup("index.html")
	if htmlEntry.Method != uint16(zip.Deflate) {
		t.Errorf("index.html Method = %d, want zip.Deflate (%d)", htmlEntry.Method, zip.Deflate)
	}
}

// extractCompressedSegment returns the raw (still compressed) bytes the
// standard zip reader finds for innerPath, via zip.File.OpenRaw. It does not
// consult Pack's recorded ArchiveStart/ArchiveEnd.
func extractCompressedSegment(t *testing.T, archiveBytes []byte, innerPath string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != innerPath {
			continue
		}
		rc, err := f.OpenRaw()
		if err != nil {
			t.Fatalf("OpenRaw(%s): %v", innerPath, err)
		}
		raw, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read raw segment %s: %v", innerPath, err)
		}
		return raw
	}
	t.Fatalf("entry %s not found in archive", innerPath)
	return nil
}

func TestPackDeterministicOrdering(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	first, err := Pack(dir)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	second, err := Pack(dir)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(first.Index.Entries) != len(second.Index.Entries) {
		t.Fatalf("entry count differs between runs")
	}
	for i := range first.Index.Entries {
		if first.Index.Entries[i].InnerPath != second.Index.Entries[i].InnerPath {
			t.Errorf("entry %d order differs: %s vs %s", i, first.Index.Entries[i].InnerPath, second.Index.Entries[i].InnerPath)
		}
	}
}

func TestInflateSegmentStoreIsVerbatim(t *testing.T) {
	data := []byte("verbatim payload")
	got, err := InflateSegment(uint16(zip.Store), data, int64(len(data)))
	if err != nil {
		t.Fatalf("InflateSegment: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestInflateSegmentDeflate(t *testing.T) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	payload := []byte("deflate me please, this is a test payload with some repetition repetition repetition")
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := InflateSegment(uint16(zip.Deflate), buf.Bytes(), int64(len(payload)))
	if err != nil {
		t.Fatalf("InflateSegment: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}
