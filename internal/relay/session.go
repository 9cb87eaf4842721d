package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
)

// ErrClosed is returned by [Session.Respond] once the session is closing.
var ErrClosed = errors.New("relay: session closed")

// State is the lifecycle state of a [Session].
type State int

const (
	// StateIdle waits for the next prompt.
	StateIdle State = iota
	// StateStreaming relays tokens of an open completion stream.
	StateStreaming
	// StateSynthesizing has one synthesis call in flight. Token relay
	// continues meanwhile.
	StateSynthesizing
	// StateClosing is terminal: the client left or the transport failed.
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateSynthesizing:
		return "synthesizing"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session coordinates request/response cycles for one client connection.
//
// Within one cycle text frames are written as tokens arrive. Flushed segments
// are queued and synthesised FIFO by a single worker, so at most one synthesis
// call is in flight and a segment's audio frame always follows the text frames
// it was cut from.
type Session struct {
	id     string
	relay  *Relay
	writer *serialWriter
	log    *slog.Logger

	respondMu sync.Mutex

	mu    sync.Mutex
	state State
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves to st unless the session is already closing.
func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing {
		return
	}
	s.state = st
}

// Close marks the session as closing. Later calls to Respond fail with
// ErrClosed. Close does not touch the connection; its owner closes it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosing
}

// Respond runs one request/response cycle for prompt and returns once the
// completion stream has ended and every queued segment was synthesised.
//
// Completion provider failures are reported to the client as one error frame
// and Respond returns nil with the session back in StateIdle. A failed frame
// write (wrapping [ErrTransport]) or cancellation of ctx returns an error and
// leaves the session in StateClosing; the caller should drop the connection.
//
// Calls are serialised; a second concurrent call waits for the first.
func (s *Session) Respond(ctx context.Context, prompt string) error {
	s.respondMu.Lock()
	defer s.respondMu.Unlock()

	if s.State() == StateClosing {
		return fmt.Errorf("relay: respond: %w", ErrClosed)
	}

	ctx, span := observe.StartSpan(ctx, "relay.respond",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.Int("prompt.chars", len(prompt)),
		),
	)
	defer span.End()
	log := observe.LoggerFrom(ctx, s.log)

	s.setState(StateStreaming)
	queue := newSegmentQueue()
	var providerErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer queue.close()
		var err error
		providerErr, err = s.stream(gctx, prompt, queue)
		return err
	})
	if s.relay.gateway != nil {
		g.Go(func() error {
			return s.synthesizeAll(gctx, queue)
		})
	}

	if err := g.Wait(); err != nil {
		s.Close()
		observe.FailSpan(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrTransport) {
			log.Info("response abandoned", "reason", ctxErr)
			return fmt.Errorf("relay: respond: %w", ctxErr)
		}
		log.Warn("client transport failed", "err", err)
		return fmt.Errorf("relay: respond: %w", err)
	}

	if providerErr != nil {
		observe.FailSpan(span, providerErr)
		log.Error("completion failed", "err", providerErr)
		if err := s.writer.write(ctx, ErrorFrame("completion failed: "+providerErr.Error())); err != nil {
			s.Close()
			return fmt.Errorf("relay: respond: %w", err)
		}
	}

	s.setState(StateIdle)
	return nil
}

// stream relays the completion for prompt and feeds flushed segments into
// queue. A provider failure is returned as providerErr; err is reserved for
// transport failures and cancellation.
func (s *Session) stream(ctx context.Context, prompt string, queue *segmentQueue) (providerErr, err error) {
	r := s.relay
	start := time.Now()

	chunks, err := r.llm.StreamCompletion(ctx, r.request(prompt))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.recordCompletion(ctx, start, err)
		return err, nil
	}

	var (
		buffer     string
		firstToken = true
		failure    error
	)
	for {
		var (
			chunk llm.Chunk
			ok    bool
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok = <-chunks:
		}
		if !ok {
			break
		}

		if chunk.IsError() {
			failure = errors.New(chunk.Text)
			continue
		}
		// Drain what is left after a failure without relaying it.
		if failure != nil || chunk.Text == "" {
			continue
		}

		if firstToken {
			firstToken = false
			r.metrics.LLMTimeToFirstToken.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("provider", r.llmName)))
		}

		if err := s.writer.write(ctx, TextFrame(chunk.Text)); err != nil {
			return nil, err
		}

		var flush bool
		buffer, flush = r.chunker.Observe(buffer, chunk.Text)
		if flush {
			s.enqueue(queue, buffer)
			buffer = ""
		}
	}

	r.recordCompletion(ctx, start, failure)
	if failure != nil {
		return failure, nil
	}
	s.enqueue(queue, buffer)
	return nil, nil
}

// enqueue queues the trimmed buffer for synthesis when it is not blank and a
// gateway is configured.
func (s *Session) enqueue(queue *segmentQueue, buffer string) {
	if s.relay.gateway == nil {
		return
	}
	if segment, ok := s.relay.chunker.Take(buffer); ok {
		queue.push(segment)
	}
}

// synthesizeAll is the per-cycle synthesis worker. It returns nil once the
// queue is closed and drained.
func (s *Session) synthesizeAll(ctx context.Context, queue *segmentQueue) error {
	for {
		segment, ok := queue.pop(ctx)
		if !ok {
			return ctx.Err()
		}

		s.setState(StateSynthesizing)
		res := s.relay.gateway.Synthesize(ctx, segment)
		s.setState(StateStreaming)

		// No audio for a client that is gone.
		if err := ctx.Err(); err != nil {
			return err
		}

		frame := AudioFrame(res.Audio)
		if !res.OK() {
			s.log.Warn("synthesis failed", "reason", res.Failure, "chars", len(segment))
			frame = ErrorFrame(res.Failure)
		}
		if err := s.writer.write(ctx, frame); err != nil {
			return err
		}
	}
}

func (r *Relay) recordCompletion(ctx context.Context, start time.Time, err error) {
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", r.llmName)))
	status := "ok"
	if err != nil {
		status = "error"
		r.metrics.RecordProviderError(ctx, r.llmName, "llm")
	}
	r.metrics.RecordProviderRequest(ctx, r.llmName, "llm", status)
}
