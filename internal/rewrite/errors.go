package rewrite

import "github.com/pkg/errors"

// ErrMemoryLimitExceeded is reported separately from generic rewrite errors
// and stream I/O errors (metric html_rewrite_ooms), and MUST NOT be retried
// by the pipeline (§4.8 Error taxonomy).
var ErrMemoryLimitExceeded = errors.New("rewrite: memory limit exceeded")

// IsMemoryLimitExceeded reports whether err is (or wraps) ErrMemoryLimitExceeded.
func IsMemoryLimitExceeded(err error) bool {
	return errors.Is(err, ErrMemoryLimitExceeded)
}
