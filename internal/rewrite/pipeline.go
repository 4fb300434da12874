package rewrite

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// chunkSize is how much the source-reader task pulls from src per read,
// independent of the channel capacity that governs backpressure.
const chunkSize = 32 * 1024

// RunPipeline implements the per-request topology of §4.8: an async task
// reads chunks from src and sends them over a bounded channel (capacity
// chanCap) to a render-pool worker running the streaming rewriter; the
// worker emits transformed chunks to a second bounded channel; this
// function forwards them to dst as they arrive.
//
// Termination: the source-reader task closes its channel when src is
// exhausted, which is this implementation's sentinel for "no more input"
// (§4.8, §9: "coroutine/async streams... cancellation = drop"). Dropping
// dst mid-stream (ctx cancellation) closes both channels; the reader task
// observes this on its next send and exits (§5 Cancellation).
func RunPipeline(ctx context.Context, pool *Pool, src io.Reader, dst io.Writer, frag Fragments, memoryCap int64, chanCap int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []byte, chanCap)
	out := make(chan []byte, chanCap)

	readErrCh := make(chan error, 1)
	go func() {
		defer close(in)
		readErrCh <- pumpSource(ctx, src, in)
	}()

	rewriteDone := pool.Submit(ctx, func() error {
		defer close(out)
		r := newChanReader(ctx, in)
		w := newChanWriter(ctx, out, memoryCap)
		return Rewrite(r, w, frag)
	})

	forwardErrCh := make(chan error, 1)
	go func() {
		forwardErrCh <- forwardToDst(ctx, out, dst)
	}()

	var firstErr error
	if err := <-readErrCh; err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "read source stream")
	}
	if err := <-rewriteDone; err != nil && firstErr == nil {
		if IsMemoryLimitExceeded(err) {
			firstErr = err // reported distinctly, never wrapped generic (§4.8)
		} else {
			firstErr = errors.Wrap(err, "rewrite html stream")
		}
	}
	if err := <-forwardErrCh; err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "forward rewritten stream")
	}
	return firstErr
}

func pumpSource(ctx context.Context, src io.Reader, in chan<- []byte) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case in <- chunk:
			case <-ctx.Done():
				return nil // dst side went away; not a stream error
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func forwardToDst(ctx context.Context, out <-chan []byte, dst io.Writer) error {
	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				return nil
			}
			if _, err := dst.Write(chunk); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
