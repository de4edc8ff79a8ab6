// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package httpapi exposes the account lifecycle over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/account"
	"github.com/keygate/keygate/internal/observability"
)

// Server serves the account API.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer wires the route table. metrics may be nil; request and
// outcome counters are skipped in that case.
func NewServer(
	addr string,
	svc AccountService,
	sessions *account.SessionIssuer,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:    addr,
		handler: NewRouter(svc, sessions, logger, metrics),
		logger:  logger,
	}
}

// NewRouter builds the chi route table with the full middleware chain.
func NewRouter(
	svc AccountService,
	sessions *account.SessionIssuer,
	logger *slog.Logger,
	metrics *observability.Metrics,
) http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer(logger))
	r.Use(requestLogger(logger))
	if metrics != nil {
		r.Use(requestCounter(metrics))
	}

	h := &handlers{svc: svc, logger: logger, metrics: metrics}

	r.Get("/healthz", healthz)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Get("/verify-email/{token}", h.verifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(sessions))
			r.Get("/profile", h.profile)
		})
	})

	return r
}

// requestCounter counts requests by route pattern and status.
func requestCounter(metrics *observability.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.statusCode)).Inc()
		})
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving the API. It returns an error channel that
// receives any error from the HTTP server after startup; the channel
// is closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listen address, empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
