// Package gateway is the helpdesk HTTP + WebSocket server: the visitor
// socket with its conversation state machine, the dashboard REST surface,
// and the bridge between the two.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/underla/helpdesk/internal/chat"
	"github.com/underla/helpdesk/internal/config"
	"github.com/underla/helpdesk/internal/logging"
	"github.com/underla/helpdesk/internal/store"
	"github.com/underla/helpdesk/internal/version"
)

// Server is the helpdesk gateway server.
type Server struct {
	cfg       config.Config
	log       *logging.Logger
	sessions  *SessionRegistry
	store     store.ConversationStore
	responder chat.Responder
	verifier  StaffVerifier
	version   string

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithStore sets the conversation store.
func WithStore(cs store.ConversationStore) ServerOption {
	return func(s *Server) {
		s.store = cs
	}
}

// WithResponder sets the AI responder for visitor conversations.
func WithResponder(r chat.Responder) ServerOption {
	return func(s *Server) {
		s.responder = r
	}
}

// WithVerifier sets the staff verifier guarding the dashboard API.
func WithVerifier(v StaffVerifier) ServerOption {
	return func(s *Server) {
		s.verifier = v
	}
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		sessions: NewSessionRegistry(log.Sub("sessions")),
		verifier: StaticVerifier{Tokens: cfg.Auth.Tokens},
		version:  version.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin
// headers. No Origin header (same-origin or non-browser clients) is allowed;
// otherwise the Origin must match a configured one.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Server.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLS.CertPath, s.cfg.Server.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Server.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled — staff tokens will be transmitted in cleartext")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Str("store", s.cfg.Store.Driver).
		Msg("helpdesk server ready")

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.sessions.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// Sessions exposes the live session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// handleWebSocket upgrades the visitor socket and runs its read loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(256 * 1024)

	sess := NewSession(conn, visitorIP(r), r.UserAgent(), s.log.Sub("ws"))
	s.sessions.Add(sess)

	defer func() {
		// Best-effort close of the persisted conversation; re-stamping an
		// already-closed one is fine.
		if id := sess.ConversationID(); id != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := s.store.CloseConversation(ctx, id); err != nil {
				s.log.Error().Err(err).Str("conversation", id).Msg("failed to close conversation")
			}
			cancel()
		}
		s.sessions.Remove(sess.ConnID)
		sess.Close()
	}()

	// The widget treats an empty conversation id as "connected, nothing
	// persisted yet".
	if err := sess.Send(connectedFrame("")); err != nil {
		s.log.Warn().Err(err).Msg("failed to send connected frame")
		return
	}

	s.readLoop(r.Context(), sess)
}

// visitorIP extracts the client IP, preferring the first X-Forwarded-For
// hop when a proxy is in front.
func visitorIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
