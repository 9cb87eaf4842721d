// Package app wires the relay subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the relay, its speech
// gateway and the HTTP server from configuration, Run serves until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject a listener, metrics and mock providers via functional
// options and the [Providers] struct. When an option is not provided, New
// falls back to the process-wide defaults.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/config"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/health"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/relay"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/server"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/llm"
	"github.com/DiegoLerma/AzureHandsOnLab/pkg/provider/tts"
)

// Providers holds the completion and speech providers plus the names used to
// label their metrics. A nil TTS runs the relay in text-only mode.
type Providers struct {
	LLM     llm.Provider
	LLMName string
	TTS     tts.Provider
	TTSName string
}

// healthReporter is implemented by provider chains that track backend health,
// such as the resilience fallbacks.
type healthReporter interface {
	Healthy() bool
}

// App owns all subsystem lifetimes for the relay server.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logger         *slog.Logger
	listener       net.Listener

	relay  *relay.Relay
	voice  tts.VoiceProfile
	server *server.Server

	// closers run in order after the HTTP server has stopped.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics instance shared by the relay and the server.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at the configured telemetry.metrics_path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr. TLS settings are ignored in that case.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithCloser registers fn to run during Shutdown after the server has
// drained, e.g. the telemetry provider's flush.
func WithCloser(fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers. It returns an error when no
// completion provider is given.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.voice = tts.VoiceProfile{
		ID:       cfg.Voice.Name,
		Name:     cfg.Voice.Name,
		Language: cfg.Voice.Language,
		Provider: providers.TTSName,
	}

	relayOpts := []relay.Option{
		relay.WithSystemInstruction(cfg.Session.SystemInstruction),
		relay.WithTemperature(cfg.Session.TemperatureOrDefault()),
		relay.WithMaxTokens(cfg.Session.MaxTokens),
		relay.WithFlushThreshold(cfg.Session.FlushThreshold),
		relay.WithMetrics(a.metrics),
		relay.WithLogger(a.logger),
	}
	if providers.LLMName != "" {
		relayOpts = append(relayOpts, relay.WithLLMName(providers.LLMName))
	}
	a.relay = relay.New(providers.LLM, a.buildGateway(), relayOpts...)

	srvOpts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithLogger(a.logger),
		server.WithHealth(health.New(a.readinessChecks()...)),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
		server.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	}
	if a.metricsHandler != nil {
		path := cfg.Telemetry.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		srvOpts = append(srvOpts, server.WithMetricsHandler(path, a.metricsHandler))
	}
	a.server = server.New(a.relay, srvOpts...)

	return a, nil
}

func (a *App) buildGateway() *relay.Gateway {
	if a.providers.TTS == nil {
		a.logger.Warn("no speech provider configured; relaying text only")
		return nil
	}
	opts := []relay.GatewayOption{relay.WithGatewayMetrics(a.metrics)}
	if a.providers.TTSName != "" {
		opts = append(opts, relay.WithProviderName(a.providers.TTSName))
	}
	return relay.NewGateway(a.providers.TTS, a.voice, opts...)
}

// Voice returns the synthesis voice derived from configuration.
func (a *App) Voice() tts.VoiceProfile {
	return a.voice
}

// readinessChecks reports not-ready while every completion backend has an
// open circuit breaker, and degraded while every speech backend does: text
// still streams without audio.
func (a *App) readinessChecks() []health.Checker {
	var checks []health.Checker
	if hr, ok := a.providers.LLM.(healthReporter); ok {
		checks = append(checks, health.Probe("llm", hr.Healthy, "all completion providers have an open circuit"))
	}
	if hr, ok := a.providers.TTS.(healthReporter); ok {
		c := health.Probe("tts", hr.Healthy, "all speech providers have an open circuit")
		c.Optional = true
		checks = append(checks, c)
	}
	return checks
}

// Handler returns the root HTTP handler. Useful for httptest servers.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and WebSocket traffic and blocks until ctx is cancelled or
// the server fails. A cancelled ctx is not an error; call [App.Shutdown]
// afterwards to drain open sessions.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.serve()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	}
}

func (a *App) serve() error {
	if a.listener != nil {
		return a.server.Serve(a.listener)
	}
	var certFile, keyFile string
	if tls := a.cfg.Server.TLS; tls != nil {
		certFile, keyFile = tls.CertFile, tls.KeyFile
	}
	return a.server.ListenAndServe(a.cfg.Server.ListenAddr, certFile, keyFile)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the server, closing every open session, then runs the
// registered closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				return
			default:
			}
			if err := closer(ctx); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
