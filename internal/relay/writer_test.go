package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
)

func TestSerialWriter_LatchesFirstFailure(t *testing.T) {
	t.Parallel()

	broken := errors.New("broken pipe")
	var calls int
	sw := &serialWriter{
		metrics: observe.DefaultMetrics(),
		w: FrameWriterFunc(func(context.Context, Frame) error {
			calls++
			if calls == 2 {
				return broken
			}
			return nil
		}),
	}
	ctx := context.Background()

	if err := sw.write(ctx, TextFrame("a")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := sw.write(ctx, AudioFrame([]byte{1}))
	if !errors.Is(err, ErrTransport) || !errors.Is(err, broken) {
		t.Fatalf("err = %v, want ErrTransport wrapping the cause", err)
	}
	if again := sw.write(ctx, TextFrame("b")); again != err {
		t.Errorf("later write = %v, want the latched error", again)
	}
	if calls != 2 {
		t.Errorf("underlying writes = %d, want 2", calls)
	}
}

func TestSerialWriter_CancelledContextSkipsWrite(t *testing.T) {
	t.Parallel()

	var called bool
	sw := &serialWriter{
		metrics: observe.DefaultMetrics(),
		w: FrameWriterFunc(func(context.Context, Frame) error {
			called = true
			return nil
		}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sw.write(ctx, AudioFrame([]byte{1}))
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want context.Canceled only", err)
	}
	if called {
		t.Error("frame written after cancellation")
	}
}

func TestSerialWriter_NoConcurrentWrites(t *testing.T) {
	t.Parallel()

	var inFlight, overlaps atomic.Int32
	sw := &serialWriter{
		metrics: observe.DefaultMetrics(),
		w: FrameWriterFunc(func(context.Context, Frame) error {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer inFlight.Add(-1)
			return nil
		}),
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				_ = sw.write(context.Background(), TextFrame("x"))
			}
		})
	}
	wg.Wait()

	if n := overlaps.Load(); n != 0 {
		t.Errorf("%d overlapping writes", n)
	}
}
