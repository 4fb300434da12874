package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/rust-lang/docs.rs-sub002/internal/storage"
)

// alreadyCompressedExt holds extensions the packager stores without further
// deflate compression, matching "no recompression of already-compressed
// contents" (§4.2).
var alreadyCompressedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".woff": true,
	".woff2": true, ".gz": true, ".zip": true, ".br": true,
}

// Packed is the pair of blobs produced by Pack.
type Packed struct {
	ArchiveBytes []byte
	IndexBytes   []byte
	Index        *Index
}

// Pack walks dir and produces a ZIP archive plus its index, in the exact
// shape Store uploads as `<target>.zip` / `<target>.zip.index` (§4.2, §6.4).
func Pack(dir string) (*Packed, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk source directory")
	}
	sort.Strings(paths) // deterministic archive layout

	var archiveBuf bytes.Buffer
	zw := zip.NewWriter(&archiveBuf)
	idx := &Index{}

	for _, rel := range paths {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		content, rerr := os.ReadFile(full)
		if rerr != nil {
			zw.Close()
			return nil, errors.Wrapf(rerr, "read %s", rel)
		}

		method := zip.Deflate
		if alreadyCompressedExt[strings.ToLower(filepath.Ext(rel))] {
			method = zip.Store
		}

		startOffset, werr := archiveOffset(&archiveBuf)
		if werr != nil {
			zw.Close()
			return nil, werr
		}

		hdr := &zip.FileHeader{Name: rel, Method: method}
		hdr.SetMode(0o644)
		w, werr := zw.CreateHeader(hdr)
		if werr != nil {
			zw.Close()
			return nil, errors.Wrapf(werr, "create zip entry %s", rel)
		}
		if _, werr := w.Write(content); werr != nil {
			zw.Close()
			return nil, errors.Wrapf(werr, "write zip entry %s", rel)
		}
		if werr := zw.Flush(); werr != nil {
			zw.Close()
			return nil, werr
		}

		endOffset, werr := archiveOffset(&archiveBuf)
		if werr != nil {
			zw.Close()
			return nil, werr
		}

		idx.Entries = append(idx.Entries, Entry{
			InnerPath:        rel,
			ArchiveStart:     startOffset,
			ArchiveEnd:       endOffset - 1,
			UncompressedSize: int64(len(content)),
			Method:           uint16(method),
		})
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip writer")
	}

	indexBytes, err := EncodeIndex(idx)
	if err != nil {
		return nil, errors.Wrap(err, "encode index")
	}

	return &Packed{ArchiveBytes: archiveBuf.Bytes(), IndexBytes: indexBytes, Index: idx}, nil
}

// archiveOffset reports how many bytes have been written to the zip buffer
// so far; used to compute the byte range of each compressed data segment.
// Note: this is the offset of the data immediately following the local file
// header, which is what a ranged GET over a STORED/DEFLATE segment needs in
// order to decode it independent of the rest of the archive.
func archiveOffset(buf *bytes.Buffer) (int64, error) {
	return int64(buf.Len()), nil
}

// InflateSegment decodes one archive segment according to its recorded
// method (Store: verbatim; Deflate: raw flate stream).
func InflateSegment(method uint16, data []byte, uncompressedSize int64) ([]byte, error) {
	if method == uint16(zip.Store) {
		return data, nil
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := storage.Materialize(fr, uncompressedSize+1)
	if err != nil {
		return nil, errors.Wrap(err, "inflate archive segment")
	}
	return out, nil
}
