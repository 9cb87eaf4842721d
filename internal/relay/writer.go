package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
)

// ErrTransport marks a failed write to the client connection. A session that
// hit it is closing and attempts no further writes.
var ErrTransport = errors.New("relay: transport failure")

// FrameWriter delivers frames to one client connection. Implementations need
// not be safe for concurrent use; the session serialises calls.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// FrameWriterFunc adapts a function to [FrameWriter].
type FrameWriterFunc func(ctx context.Context, f Frame) error

// WriteFrame calls fn(ctx, f).
func (fn FrameWriterFunc) WriteFrame(ctx context.Context, f Frame) error {
	return fn(ctx, f)
}

// serialWriter serialises writes from the token loop and the synthesis worker
// and latches the first transport error.
type serialWriter struct {
	mu      sync.Mutex
	w       FrameWriter
	err     error
	metrics *observe.Metrics
}

// write sends f unless ctx is done or an earlier write failed. Write failures
// are wrapped in ErrTransport.
func (s *serialWriter) write(ctx context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.w.WriteFrame(ctx, f); err != nil {
		s.err = fmt.Errorf("%w: write %s frame: %w", ErrTransport, f.Kind, err)
		return s.err
	}
	s.metrics.RecordFrame(ctx, f.Kind.String())
	return nil
}

