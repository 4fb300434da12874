// Package archive implements the Archive Packager (C2): packing a directory
// into a ZIP blob plus a compact msgpack index sidecar for random access.
/*
 * Copyright (c) 2024-2026, The docs.rs-sub002 Authors. All rights reserved.
 */
package archive

import (
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// Entry is one file's record in the archive index: its byte range inside the
// archive blob and its uncompressed size (§4.2, §6.4).
type Entry struct {
	InnerPath        string
	ArchiveStart     int64
	ArchiveEnd       int64
	UncompressedSize int64
	Method           uint16 // zip.Store or zip.Deflate; range covers the compressed bytes
}

// Index is the full manifest persisted as `<archive>.zip.index`.
type Index struct {
	Entries []Entry
}

// MarshalMsg encodes the index as msgpack, hand-written in the shape the
// `tinylib/msgp` code generator would otherwise produce.
func (idx *Index) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, uint32(len(idx.Entries)))
	for _, e := range idx.Entries {
		o = msgp.AppendArrayHeader(o, 5)
		o = msgp.AppendString(o, e.InnerPath)
		o = msgp.AppendInt64(o, e.ArchiveStart)
		o = msgp.AppendInt64(o, e.ArchiveEnd)
		o = msgp.AppendInt64(o, e.UncompressedSize)
		o = msgp.AppendUint16(o, e.Method)
	}
	return o, nil
}

// UnmarshalMsg decodes the index, returning unconsumed trailing bytes.
func (idx *Index) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, errors.Wrap(err, "read index array header")
	}
	entries := make([]Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		fieldCount, rest, ferr := msgp.ReadArrayHeaderBytes(b)
		if ferr != nil || fieldCount != 5 {
			return b, errors.Wrap(ferr, "read index entry header")
		}
		b = rest
		var e Entry
		e.InnerPath, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, errors.Wrap(err, "read inner path")
		}
		e.ArchiveStart, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, errors.Wrap(err, "read archive start")
		}
		e.ArchiveEnd, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, errors.Wrap(err, "read archive end")
		}
		e.UncompressedSize, b, err = msgp.ReadInt64Bytes(b)
		if err != nil {
			return b, errors.Wrap(err, "read uncompressed size")
		}
		e.Method, b, err = msgp.ReadUint16Bytes(b)
		if err != nil {
			return b, errors.Wrap(err, "read method")
		}
		entries = append(entries, e)
	}
	idx.Entries = entries
	return b, nil
}

// Lookup returns the Entry for innerPath, if present.
func (idx *Index) Lookup(innerPath string) (Entry, bool) {
	for _, e := range idx.Entries {
		if e.InnerPath == innerPath {
			return e, true
		}
	}
	return Entry{}, false
}

// EncodeIndex serializes idx to its wire form; the index itself is then
// compressed by the caller with the release's chosen algorithm (§6.4).
func EncodeIndex(idx *Index) ([]byte, error) {
	return idx.MarshalMsg(nil)
}

// DecodeIndex parses a previously-decompressed index blob.
func DecodeIndex(data []byte) (*Index, error) {
	idx := &Index{}
	leftover, err := idx.UnmarshalMsg(data)
	if err != nil {
		return nil, err
	}
	if len(leftover) != 0 {
		return nil, errors.New("archive: trailing bytes after index")
	}
	return idx, nil
}
