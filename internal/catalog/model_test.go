package catalog

import (
	"strings"
	"testing"
)

func TestNormalizeCrateName(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "lowercases", in: "Serde", want: "serde"},
		{name: "trims whitespace", in: "  tokio  ", want: "tokio"},
		{name: "empty after trim", in: "   ", wantErr: true},
		{name: "empty string", in: "", wantErr: true},
		{name: "exactly 64 bytes", in: strings.Repeat("a", 64), want: strings.Repeat("a", 64)},
		{name: "65 bytes is too long", in: strings.Repeat("a", 65), wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := NormalizeCrateName(c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q, got nil", c.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", c.in, err)
			}
			if got != c.want {
				t.Errorf("NormalizeCrateName(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "name", Reason: "empty"}
	if err.Error() != "invalid name: empty" {
		t.Errorf("Error() = %q, want %q", err.Error(), "invalid name: empty")
	}
}

func TestCompressionAlgorithmExtensionAndString(t *testing.T) {
	cases := []struct {
		alg       CompressionAlgorithm
		ext, name string
	}{
		{CompressionZstd, ".zst", "zstd"},
		{CompressionBzip2, ".bz2", "bzip2"},
		{CompressionGzip, ".gz", "gzip"},
	}
	for _, c := range cases {
		if got := c.alg.Extension(); got != c.ext {
			t.Errorf("%v.Extension() = %q, want %q", c.alg, got, c.ext)
		}
		if got := c.alg.String(); got != c.name {
			t.Errorf("%v.String() = %q, want %q", c.alg, got, c.name)
		}
	}
}
