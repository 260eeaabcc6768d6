// Package server exposes the catalog and per-user cart and wishlist
// resources over HTTP under /api/v1.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/backend"
	"github.com/lherron/cartsync/internal/logging"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:7272"

// Options configures a Server.
type Options struct {
	Store *backend.Store
	// Token, when set, is required as a bearer token on every request
	// except health checks.
	Token string
	// Rate is the allowed requests per second per client; 0 disables
	// limiting.
	Rate  float64
	Burst int
	Log   logrus.FieldLogger
}

// Server serves the REST API.
type Server struct {
	store   *backend.Store
	token   string
	limiter *rateLimiter
	log     logrus.FieldLogger
	handler http.Handler
}

// New builds a server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	s := &Server{
		store: opts.Store,
		token: opts.Token,
		log:   logging.OrDiscard(opts.Log).WithField("component", "server"),
	}
	if opts.Rate > 0 {
		s.limiter = newRateLimiter(opts.Rate, opts.Burst)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.withRequestLog(s.withRateLimit(mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", listener.Addr().String()).Info("listening")
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
