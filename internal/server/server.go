package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hyperboria-dev/cjdns/internal/admin"
	"github.com/hyperboria-dev/cjdns/internal/audit"
	"github.com/hyperboria-dev/cjdns/internal/auth"
	"github.com/hyperboria-dev/cjdns/internal/logging"
)

// AuditLister returns recent subscription lifecycle events.
type AuditLister interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// AuthLimiter throttles clients presenting bad tokens.
type AuthLimiter interface {
	Check(ctx context.Context, ip string) error
	RecordFailure(ctx context.Context, ip string) error
}

// Config wires the server's collaborators. Issuer, Limiter and Audit are
// optional.
type Config struct {
	Addr        string
	Admin       *admin.Admin
	Streams     *admin.Streams
	Broadcaster *logging.Broadcaster
	Issuer      *auth.Issuer
	Limiter     AuthLimiter
	Audit       AuditLister
	Logger      *slog.Logger
}

// Server is the admin interface over HTTP.
type Server struct {
	admin       *admin.Admin
	streams     *admin.Streams
	broadcaster *logging.Broadcaster
	issuer      *auth.Issuer
	limiter     AuthLimiter
	audit       AuditLister
	logger      *slog.Logger
	server      *http.Server

	// ctx ends long-lived streams when the server shuts down.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		admin:       cfg.Admin,
		streams:     cfg.Streams,
		broadcaster: cfg.Broadcaster,
		issuer:      cfg.Issuer,
		limiter:     cfg.Limiter,
		audit:       cfg.Audit,
		logger:      logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	return s
}

// Handler returns the routed handler, wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.getHealth)

	mux.HandleFunc("GET /admin/functions", s.requireAuth(s.getFunctions))
	mux.HandleFunc("POST /admin/call", s.requireAuth(s.postCall))
	mux.HandleFunc("GET /admin/stream", s.requireAuth(s.getStream))
	mux.HandleFunc("GET /admin/stats", s.requireAuth(s.getStats))
	mux.HandleFunc("GET /admin/subscriptions", s.requireAuth(s.getSubscriptions))
	if s.audit != nil {
		mux.HandleFunc("GET /admin/audit", s.requireAuth(s.getAudit))
	}

	return s.withLogging(mux.ServeHTTP)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("admin interface listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Initiating graceful server shutdown")
	s.cancel()
	return s.server.Shutdown(ctx)
}
