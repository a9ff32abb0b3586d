// Package http serves the tracker's JSON API.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/middleware/ratelimit"
	"trackbus/internal/middleware/security"
	"trackbus/internal/middleware/trace"
	"trackbus/internal/notify"
	"trackbus/internal/records"
	"trackbus/internal/services"
	"trackbus/internal/session"
)

// ReportSource exposes the tracker's latest results.
type ReportSource interface {
	Report() core.Report
	Snapshot() records.Snapshot
	Ready() bool
}

// SessionSource exposes the session coordinator.
type SessionSource interface {
	State() session.State
	Identity() *session.Identity
	Err() error
}

// Submitter accepts new entries.
type Submitter interface {
	SubmitExpense(ctx context.Context, in services.ExpenseInput) (string, error)
	SubmitSale(ctx context.Context, in services.SaleInput) (string, error)
}

// NotificationSource exposes the visible notification.
type NotificationSource interface {
	Current() (notify.Notification, bool)
}

// Dependencies are what the handlers read from and write to. Metrics may be
// nil, in which case /metrics is not mounted.
type Dependencies struct {
	Tracker       ReportSource
	Session       SessionSource
	Entries       Submitter
	Notifications NotificationSource
	Metrics       http.Handler
	Logger        *log.Logger
	RateLimit     ratelimit.Config
}

type Server struct {
	http.Server

	deps        Dependencies
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

const maxBodyBytes = 64 << 10

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := log.OrDiscard(deps.Logger, log.ComponentHTTP)
	detector := security.NewDetector(logger)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps:        deps,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(deps.RateLimit),
		detector:    detector,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/partners", s.handlePartners)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/sales", s.handleListSales)
	mux.HandleFunc("POST /api/sales", s.handleCreateSale)
	mux.HandleFunc("GET /api/notification", s.handleNotification)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited, http.MethodPost)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = detector.Middleware(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(logger)(h)
	h = trace.NewMiddleware(detector.ExtractClientIP, logger).Middleware(h)
	s.Handler = h

	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		s.rateLimiter.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the rate limiter and the HTTP server. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate_limited", "", "Too many requests. Please try again later.")
}
