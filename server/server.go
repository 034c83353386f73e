// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package server serves the relying party over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashicorp/oidc-rp/auth"
	"github.com/hashicorp/oidc-rp/policy"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
)

// Server serves the relying party's HTTP routes:
//
//	GET  /login          redirect to the provider
//	GET  /auth-callback  complete a login
//	GET  /logout         end the session (authenticated)
//	GET  /userinfo       the session's user (authenticated)
//	POST /external-auth  evaluate the external auth policy
//	GET  /healthz        dependency health
//	GET  /metrics        prometheus exposition
type Server struct {
	addr            string
	controller      *auth.Controller
	externalChecker policy.Checker
	healthChecks    map[string]HealthCheck
	gatherer        prometheus.Gatherer
	closers         []io.Closer
	shutdownTimeout time.Duration
	logger          hclog.Logger

	router *chi.Mux
	http   *http.Server
}

// New creates a Server listening on addr once Run is called.
//
// Supported options: WithLogger, WithGatherer, WithExternalAuthChecker,
// WithHealthCheck, WithCloser, WithShutdownTimeout
func New(addr string, c *auth.Controller, opt ...Option) (*Server, error) {
	const op = "server.New"
	if addr == "" {
		return nil, fmt.Errorf("%s: address is empty: %w", op, ErrInvalidParameter)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: controller is nil: %w", op, ErrNilParameter)
	}
	opts := getServerOpts(opt...)
	s := &Server{
		addr:            addr,
		controller:      c,
		externalChecker: opts.withExternalChecker,
		healthChecks:    opts.withHealthChecks,
		gatherer:        opts.withGatherer,
		closers:         opts.withClosers,
		shutdownTimeout: opts.withShutdownTimeout,
		logger:          opts.withLogger,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/login", s.controller.Login)
	r.Get("/auth-callback", s.controller.Callback)
	r.Group(func(r chi.Router) {
		r.Use(s.controller.RequireAuth)
		r.Get("/logout", s.controller.Logout)
		r.Get("/userinfo", s.userInfo)
	})
	r.Post("/external-auth", s.externalAuth)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Run listens on the server's address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	const op = "Server.Run"
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: unable to listen on %s: %w", op, s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or serving fails. Either way the
// server is shut down, waiting up to the shutdown timeout for in-flight
// requests, and its closers are closed. Every error met on the way out is
// returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	const op = "Server.Serve"
	var result *multierror.Error

	served := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		served <- s.http.Serve(ln)
	}()

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			result = multierror.Append(result, fmt.Errorf("%s: serve: %w", op, err))
		}
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: shutdown: %w", op, err))
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: close: %w", op, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
