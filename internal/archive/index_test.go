package archive

import "testing"

func TestIndexRoundTrip(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{InnerPath: "index.html", ArchiveStart: 0, ArchiveEnd: 99, UncompressedSize: 400, Method: 8},
		{InnerPath: "static/style.css", ArchiveStart: 100, ArchiveEnd: 149, UncompressedSize: 50, Method: 0},
	}}

	encoded, err := EncodeIndex(idx)
	if err != nil {
		t.Fatalf("EncodeIndex: %v", err)
	}

	decoded, err := DecodeIndex(encoded)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(decoded.Entries) != len(idx.Entries) {
		t.Fatalf("got %d entries, want %d", len(decoded.Entries), len(idx.Entries))
	}
	for i, want := range idx.Entries {
		got := decoded.Entries[i]
		if got != want {
			t.Errorf("entry %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestIndexRoundTripEmpty(t *testing.T) {
	idx := &Index{}
	encoded, err := EncodeIndex(idx)
	if err != nil {
		t.Fatalf("EncodeIndex: %v", err)
	}
	decoded, err := DecodeIndex(encoded)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	if len(decoded.Entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(decoded.Entries))
	}
}

func TestDecodeIndexRejectsTrailingBytes(t *testing.T) {
	idx := &Index{Entries: []Entry{{InnerPath: "a", ArchiveStart: 0, ArchiveEnd: 1, UncompressedSize: 2, Method: 8}}}
	encoded, err := EncodeIndex(idx)
	if err != nil {
		t.Fatalf("EncodeIndex: %v", err)
	}
	if _, err := DecodeIndex(append(encoded, 0xFF)); err == nil {
		t.Fatal("expected an error for trailing bytes, got nil")
	}
}

func TestIndexLookup(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{InnerPath: "index.html", ArchiveStart: 0, ArchiveEnd: 9, UncompressedSize: 10, Method: 8},
	}}
	e, ok := idx.Lookup("index.html")
	if !ok {
		t.Fatal("expected index.html to be found")
	}
	if e.ArchiveEnd != 9 {
		t.Errorf("ArchiveEnd = %d, want 9", e.ArchiveEnd)
	}
	if _, ok := idx.Lookup("missing.html"); ok {
		t.Fatal("expected missing.html to be absent")
	}
}
