package web

import (
	"embed"
	"io/fs"

	"github.com/OneOfOne/xxhash"

	"github.com/rust-lang/docs.rs-sub002/internal/cache"
)

//go:embed static
var staticFS embed.FS

// BuildStaticETags walks the embedded static asset tree once at startup and
// hashes each file into a strong ETag, matching the original's build.rs-time
// generation (§4.9, SPEC_FULL §3). The resulting map is read-only for the
// rest of the process lifetime (§5 Shared resources).
func BuildStaticETags() (cache.ETagMap, error) {
	etags := make(cache.ETagMap)
	err := fs.WalkDir(staticFS, "static", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, rerr := staticFS.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		h := xxhash.New64()
		_, _ = h.Write(content)
		etags["/-/static/"+stripPrefix(path)] = `"` + hexSum(h.Sum(nil)) + `"`
		return nil
	})
	return etags, err
}

func stripPrefix(path string) string {
	if len(path) > len("static/") {
		return path[len("static/"):]
	}
	return path
}

func hexSum(sum []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xF]
	}
	return string(out)
}
