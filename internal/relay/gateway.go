package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

// AudioResult is the outcome of one synthesis call: either Audio or a
// human-readable Failure, never both.
type AudioResult struct {
	Audio   []byte
	Failure string
}

// OK reports whether the result carries audio.
func (r AudioResult) OK() bool {
	return r.Failure == ""
}

func failed(format string, args ...any) AudioResult {
	return AudioResult{Failure: fmt.Sprintf(format, args...)}
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithGatewayMetrics sets the metrics used for synthesis latency and request
// counters. Defaults to [observe.DefaultMetrics].
func WithGatewayMetrics(m *observe.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithProviderName sets the provider label reported in metrics and spans.
func WithProviderName(name string) GatewayOption {
	return func(g *Gateway) {
		g.name = name
	}
}

// Gateway wraps a TTS provider and a fixed voice. It holds no per-session
// state and is safe to share; callers serialise their own calls.
type Gateway struct {
	provider tts.Provider
	voice    tts.VoiceProfile
	name     string
	metrics  *observe.Metrics
}

// NewGateway returns a Gateway that synthesises with voice through provider.
// A nil provider or an empty voice is not rejected here; every call then
// returns a Failure instead.
func NewGateway(provider tts.Provider, voice tts.VoiceProfile, opts ...GatewayOption) *Gateway {
	g := &Gateway{provider: provider, voice: voice, name: "tts"}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Voice returns the configured voice.
func (g *Gateway) Voice() tts.VoiceProfile {
	return g.voice
}

// Synthesize converts text to audio. It never returns an error: provider
// errors, cancellation, missing voice configuration, empty audio and panics in
// the provider all become a Failure.
func (g *Gateway) Synthesize(ctx context.Context, text string) (res AudioResult) {
	if g.provider == nil {
		return failed("speech synthesis is not configured")
	}
	if strings.TrimSpace(g.voice.ID) == "" {
		return failed("speech synthesis unavailable: no voice configured")
	}
	if strings.TrimSpace(text) == "" {
		return failed("speech synthesis skipped: empty text")
	}

	ctx, span := observe.StartSpan(ctx, "relay.synthesize",
		trace.WithAttributes(
			attribute.String("tts.provider", g.name),
			attribute.String("tts.voice", g.voice.ID),
			attribute.Int("tts.chars", len(text)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failed("speech synthesis failed: %v", r)
		}
		g.record(ctx, start, res)
		if !res.OK() {
			observe.FailSpan(span, errors.New(res.Failure))
		}
	}()

	audio, err := g.provider.Synthesize(ctx, text, g.voice)
	switch {
	case ctx.Err() != nil:
		return failed("speech synthesis cancelled")
	case err != nil:
		return failed("speech synthesis failed: %v", err)
	case len(audio) == 0:
		return failed("speech synthesis returned no audio")
	}
	return AudioResult{Audio: audio}
}

func (g *Gateway) record(ctx context.Context, start time.Time, res AudioResult) {
	g.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", g.name)))
	status := "ok"
	if !res.OK() {
		status = "error"
		g.metrics.RecordProviderError(ctx, g.name, "tts")
	}
	g.metrics.RecordProviderRequest(ctx, g.name, "tts", status)
}
