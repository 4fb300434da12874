package storage

import (
	"encoding/hex"

	"github.com/OneOfOne/xxhash"
)

// xxhashHex hashes content with xxhash64 for a cheap, deterministic content
// fingerprint.
func xxhashHex(content []byte) string {
	h := xxhash.New64()
	_, _ = h.Write(content)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// rangeETag derives a per-range ETag from an archive's own ETag, guaranteeing
// that a rebuilt archive invalidates all derived ETags while identical
// archives yield stable per-file ETags (§4.2).
func rangeETag(archiveETag string, start, end int64) string {
	return archiveETag + "-" + itoa(start) + "-" + itoa(end)
}

// RangeETag is the exported form of rangeETag, used by the archive reader to
// derive a per-file ETag without reaching into this package's internals.
func RangeETag(archiveETag string, start, end int64) string {
	return rangeETag(archiveETag, start, end)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
