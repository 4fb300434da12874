// Package storage implements the Content Store (C1): blob get/put/list/delete
// with compression, range reads, and ETag computation.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package storage

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/catalog"
)

// ErrBadMagic is returned eagerly by Decompress when the stream's leading
// bytes don't match the algorithm's format magic (§4.1, §8 StreamingBlob test).
var ErrBadMagic = errors.New("storage: compressed stream has invalid magic")

// decoderFor wraps r in a streaming decoder for algo, pre-reading enough
// bytes to surface a bad-magic error eagerly rather than mid-stream.
func decoderFor(algo catalog.CompressionAlgorithm, r io.Reader) (io.ReadCloser, error) {
	switch algo {
	case catalog.CompressionZstd:
		return newZstdReader(r)
	case catalog.CompressionGzip:
		return newGzipReader(r)
	case catalog.CompressionBzip2:
		// Bzip2 streams begin with "BZh"; peek it like the zstd path does.
		peek := make([]byte, 3)
		n, err := io.ReadFull(r, peek)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, "read bzip2 magic")
		}
		if n == 3 && !bytes.Equal(peek, []byte("BZh")) {
			return nil, ErrBadMagic
		}
		return io.NopCloser(bzip2.NewReader(io.MultiReader(bytes.NewReader(peek[:n]), r))), nil
	case catalog.CompressionNone:
		return io.NopCloser(r), nil
	default:
		return nil, errors.Errorf("storage: unsupported compression algorithm %v", algo)
	}
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z *zstdReadCloser) Close() error                { z.dec.Close(); return nil }

func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	// Zstd frames begin with the 4-byte magic 0x28 0xB5 0x2F 0xFD; peek it so
	// a corrupt archive fails at open instead of mid-stream.
	peek := make([]byte, 4)
	n, err := io.ReadFull(r, peek)
	if n == 4 && (err == nil || err == io.ErrUnexpectedEOF) {
		if !bytes.Equal(peek, []byte{0x28, 0xB5, 0x2F, 0xFD}) {
			return nil, ErrBadMagic
		}
	} else if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read zstd magic")
	}
	full := io.MultiReader(bytes.NewReader(peek[:n]), r)
	dec, err := zstd.NewReader(full)
	if err != nil {
		return nil, errors.Wrap(err, "open zstd stream")
	}
	return &zstdReadCloser{dec: dec}, nil
}

func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, ErrBadMagic
	}
	return gz, nil
}

// compressorFor returns a streaming encoder for algo, used when writing
// index sidecars and other re-encodable blobs (the release's own archives
// are stored without recompression — see internal/archive).
func compressorFor(algo catalog.CompressionAlgorithm, w io.Writer) (io.WriteCloser, error) {
	switch algo {
	case catalog.CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "open zstd writer")
		}
		return enc, nil
	case catalog.CompressionGzip:
		return gzip.NewWriter(w), nil
	case catalog.CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, errors.Errorf("storage: no encoder for compression algorithm %v (bzip2 is decode-only; lz4 is used for auxiliary assets only)", algo)
	}
}

// Compress encodes content with algo, used when writing the archive index
// blobs and other blobs that Content Store serves compressed end-to-end
// (§4.2, §6.4). Archive blobs themselves are stored uncompressed so they can
// be range-read.
func Compress(algo catalog.CompressionAlgorithm, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := compressorFor(algo, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(content); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "compress")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "close compressor")
	}
	return buf.Bytes(), nil
}

// LZ4Compress copies src into dst as an lz4 stream. Nothing in this
// repository calls it; ingest's shared-asset pass stores no assets.
func LZ4Compress(dst io.Writer, src io.Reader) error {
	zw := lz4.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		return errors.Wrap(err, "lz4 compress")
	}
	return zw.Close()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
