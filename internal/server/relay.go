package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DiegoLerma/AzureHandsOnLab/internal/relay"
)

// wsFrameWriter writes relay frames as WebSocket text messages.
type wsFrameWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

// WriteFrame implements relay.FrameWriter.
func (w wsFrameWriter) WriteFrame(ctx context.Context, f relay.Frame) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return w.conn.Write(ctx, websocket.MessageText, []byte(f.Encode()))
}

// handleWS is the connection front door: one WebSocket, one session, one
// prompt at a time until the client leaves or the transport fails.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.readLimit)

	// Cancelled when the client disconnects, the read loop fails or the
	// server shuts down.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	id := uuid.NewString()
	log := s.logger.With(slog.String("session_id", id), slog.String("remote", r.RemoteAddr))
	session := s.relay.NewSession(id, wsFrameWriter{conn: conn, timeout: s.writeTimeout})
	defer session.Close()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	log.Info("session opened")

	prompts := make(chan string, defaultPromptBuffer)
	go s.readPrompts(ctx, cancel, conn, prompts, log)

	for {
		select {
		case <-ctx.Done():
			if s.baseCtx.Err() != nil {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			log.Info("session closed", "reason", context.Cause(ctx))
			return
		case prompt, ok := <-prompts:
			if !ok {
				log.Info("session closed by client")
				return
			}
			if err := session.Respond(ctx, prompt); err != nil {
				if errors.Is(err, relay.ErrTransport) {
					log.Warn("session closed after transport failure", "err", err)
				} else {
					log.Info("session closed", "err", err)
				}
				return
			}
		}
	}
}

// readPrompts reads client messages until the connection fails, forwarding
// non-blank text prompts. Reading continues while a response is in flight so
// a disconnect is noticed immediately; the read error cancels ctx.
func (s *Server) readPrompts(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, prompts chan<- string, log *slog.Logger) {
	defer close(prompts)
	defer cancel()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); status {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("client closed connection", "status", status)
			default:
				if ctx.Err() == nil {
					log.Debug("read failed", "err", err)
				}
			}
			return
		}
		if typ != websocket.MessageText {
			log.Warn("ignoring binary message", "bytes", len(data))
			continue
		}
		prompt := string(data)
		if strings.TrimSpace(prompt) == "" {
			log.Debug("ignoring blank prompt")
			continue
		}

		select {
		case prompts <- prompt:
		case <-ctx.Done():
			return
		}
	}
}
