package storage

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// ErrPathNotFound is the sentinel every backend must translate its native
// "no such key" family into (§4.1 error taxonomy).
var ErrPathNotFound = errors.New("storage: path not found")

// ErrOverflow is returned by StreamingBlob.Materialize when the reader
// exceeds the caller's max size.
type ErrOverflow struct {
	MaxSize int64
}

func (e *ErrOverflow) Error() string {
	return errors.Errorf("storage: materialize exceeded max size %d bytes", e.MaxSize).Error()
}

// Range is an inclusive byte range request, start..=end.
type Range struct {
	Start, End int64
}

// StreamingBlob carries everything a caller needs to stream or decompress a
// stored object (§4.1).
type StreamingBlob struct {
	Path          string
	Mime          string
	DateUpdated   time.Time
	ETag          string
	Compression   catalog.CompressionAlgorithm
	ContentLength int64
	Body          io.ReadCloser
}

// Decompress wraps Body in an algorithm-specific decoder and eagerly
// pre-reads enough bytes to surface a format-magic error before any bytes
// reach the caller (§4.1, §8).
func (b *StreamingBlob) Decompress() (io.ReadCloser, error) {
	dec, err := decoderFor(b.Compression, b.Body)
	if err != nil {
		b.Body.Close()
		return nil, err
	}
	return dec, nil
}

// Materialize drains Body (or a decompressed view of it, the caller's
// choice of reader) into memory, failing with ErrOverflow if maxSize is
// exceeded.
func Materialize(r io.Reader, maxSize int64) ([]byte, error) {
	limited := io.LimitReader(r, maxSize+1)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, limited); err != nil {
		return nil, errors.Wrap(err, "materialize")
	}
	if int64(buf.Len()) > maxSize {
		return nil, &ErrOverflow{MaxSize: maxSize}
	}
	return buf.Bytes(), nil
}

// Upload is one entry in a StoreBatch call.
type Upload struct {
	Path        string
	Content     []byte
	Mime        string
	Compression catalog.CompressionAlgorithm
}
