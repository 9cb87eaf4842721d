// Package server exposes the relay over HTTP: the WebSocket front door at
// /ws, the bundled client page at /, health checks and the metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/health"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/observe"
	"github.com/DiegoLerma/AzureHandsOnLab/internal/relay"
)

const (
	defaultReadLimit    = 64 << 10
	defaultPromptBuffer = 16
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetricsHandler mounts h (typically promhttp.Handler()) at path.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// WithReadLimit caps the size of one inbound prompt message in bytes.
func WithReadLimit(n int64) Option {
	return func(s *Server) {
		s.readLimit = n
	}
}

// WithWriteTimeout bounds each frame write to the client. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// WithOriginPatterns allows cross-origin WebSocket upgrades from the given
// host patterns (see websocket.AcceptOptions.OriginPatterns).
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// Server serves the relay over HTTP and WebSocket.
type Server struct {
	relay   *relay.Relay
	metrics *observe.Metrics
	logger  *slog.Logger
	health  *health.Handler

	metricsPath    string
	metricsHandler http.Handler

	readLimit      int64
	writeTimeout   time.Duration
	originPatterns []string

	handler http.Handler

	// baseCtx is cancelled by Shutdown and aborts every open session.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	conns      sync.WaitGroup

	// mu guards httpSrv and closing. Sessions join conns under mu so none is
	// added once Shutdown has started waiting.
	mu      sync.Mutex
	httpSrv *http.Server
	closing bool
}

// New creates a Server for r.
func New(r *relay.Relay, opts ...Option) *Server {
	s := &Server{
		relay:     r,
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
	}
	quiet := []string{"/healthz", "/readyz"}
	if s.metricsHandler != nil {
		quiet = append(quiet, s.metricsPath)
	}
	s.handler = observe.Middleware(s.metrics, observe.WithQuietRoutes(quiet...))(mux)
	return s
}

// Handler returns the root HTTP handler with tracing and metrics middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on addr and serves until [Server.Shutdown]. When
// certFile and keyFile are both set the listener uses TLS.
func (s *Server) ListenAndServe(addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.serve(ln, certFile, keyFile)
}

// Serve accepts connections on ln until [Server.Shutdown].
func (s *Server) Serve(ln net.Listener) error {
	return s.serve(ln, "", "")
}

func (s *Server) serve(ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("relay listening", "addr", ln.Addr().String(), "tls", certFile != "")

	var err error
	if certFile != "" && keyFile != "" {
		err = srv.ServeTLS(ln, certFile, keyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: serve: %w", err)
}

// track registers a session with conns. It reports false once Shutdown has
// begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

// Shutdown stops accepting connections, aborts in-flight responses, closes
// every WebSocket session and waits for them to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.httpSrv
	s.mu.Unlock()
	s.cancelBase()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: http shutdown: %w", err))
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("server: waiting for sessions: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
