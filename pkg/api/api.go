package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/config"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// Addr returns the bound listen address once started.
	Addr() string
}

// TraceFetcher loads a stored trace by name. Returns (nil, nil) when the
// trace does not exist.
type TraceFetcher interface {
	GetTrace(ctx context.Context, name string) ([]byte, error)
}

// Option configures a server.
type Option func(*server)

// WithOrphanPolicy sets the policy used by the convert endpoint.
func WithOrphanPolicy(p trace.OrphanPolicy) Option {
	return func(s *server) {
		s.policy = p
	}
}

// WithTraceFetcher sets a fallback source for traces missing locally.
func WithTraceFetcher(f TraceFetcher) Option {
	return func(s *server) {
		s.fetcher = f
	}
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	policy     trace.OrphanPolicy
	maxBody    int64
	local      *localTraceServer
	fetcher    TraceFetcher
	limiter    *limiterPool
	httpServer *http.Server
	addr       string
	wg         sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	opts ...Option,
) (Server, error) {
	maxBody, err := cfg.Server.MaxBodyBytes()
	if err != nil {
		return nil, fmt.Errorf("parsing max body size: %w", err)
	}

	s := &server{
		log:     log.WithField("component", "api"),
		cfg:     cfg,
		maxBody: maxBody,
	}

	if cfg.Server.TracesDir != "" {
		s.local = newLocalTraceServer(s.log, cfg.Server.TracesDir)
	}

	if cfg.Server.RateLimit.Enabled {
		s.limiter = newLimiterPool(cfg.Server.RateLimit.RequestsPerMinute)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.addr = ln.Addr().String()

	if s.limiter != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.limiter.run()
		}()
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.addr).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	if s.limiter != nil {
		s.limiter.stop()
	}

	s.wg.Wait()

	s.log.Info("API server stopped")

	return nil
}

// Addr returns the bound address.
func (s *server) Addr() string {
	return s.addr
}
