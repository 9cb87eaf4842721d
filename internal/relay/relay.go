// Package relay implements the streaming session coordinator: it relays
// completion tokens to a client as they arrive, cuts the text into
// sentence-sized segments and synthesises each segment into audio without
// holding up the text stream.
//
// A [Relay] holds the process-wide, read-only wiring (completion provider,
// synthesis gateway, request parameters). Each client connection gets its own
// [Session] from [Relay.NewSession]; sessions never share buffers.
package relay

import (
	"log/slog"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
)

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// Option configures a [Relay].
type Option func(*Relay)

// WithSystemInstruction prepends a system message to every completion request.
func WithSystemInstruction(instruction string) Option {
	return func(r *Relay) {
		r.systemInstruction = instruction
	}
}

// WithTemperature sets the sampling temperature sent with every request,
// including an explicit 0.
func WithTemperature(t float64) Option {
	return func(r *Relay) {
		r.temperature = t
	}
}

// WithMaxTokens caps the completion length. Zero means no cap.
func WithMaxTokens(n int) Option {
	return func(r *Relay) {
		r.maxTokens = n
	}
}

// WithFlushThreshold sets the segment length that forces a flush.
func WithFlushThreshold(n int) Option {
	return func(r *Relay) {
		r.chunker.Threshold = n
	}
}

// WithLLMName sets the completion provider label used in metrics.
func WithLLMName(name string) Option {
	return func(r *Relay) {
		r.llmName = name
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithLogger sets the base logger for sessions. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// Relay is the shared configuration from which sessions are created. It is
// immutable after [New] and safe for concurrent use.
type Relay struct {
	llm     llm.Provider
	gateway *Gateway
	chunker Chunker

	systemInstruction string
	temperature       float64
	maxTokens         int
	llmName           string

	metrics *observe.Metrics
	logger  *slog.Logger
}

// New creates a Relay that streams completions from provider and synthesises
// segments through gateway.
func New(provider llm.Provider, gateway *Gateway, opts ...Option) *Relay {
	r := &Relay{
		llm:         provider,
		gateway:     gateway,
		chunker:     Chunker{Threshold: DefaultFlushThreshold},
		temperature: DefaultTemperature,
		llmName:     "llm",
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// NewSession creates the session for one client connection. Frames are
// delivered through w.
func (r *Relay) NewSession(id string, w FrameWriter) *Session {
	return &Session{
		id:     id,
		relay:  r,
		writer: &serialWriter{w: w, metrics: r.metrics},
		log:    r.logger.With(slog.String("session_id", id)),
	}
}

// request builds the completion request for one prompt.
func (r *Relay) request(prompt string) llm.CompletionRequest {
	temperature := r.temperature
	return llm.CompletionRequest{
		SystemPrompt: r.systemInstruction,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature:  &temperature,
		MaxTokens:    r.maxTokens,
	}
}
