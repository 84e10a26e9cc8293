package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fleet/internal/infrastructure/logging"
)

const (
	gracefulShutdownTimeout = 10 * time.Second
	defaultCheckTimeout     = 5 * time.Second
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
)

// Check is one named health probe. A nil error means healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// ErrDisconnected is reported by ConnectedCheck probes.
var ErrDisconnected = errors.New("not connected")

// ConnectedCheck adapts a connection-state getter such as
// transport.Client.IsConnected into a Check.
func ConnectedCheck(name string, connected func() bool) Check {
	return Check{Name: name, Probe: func(context.Context) error {
		if !connected() {
			return ErrDisconnected
		}
		return nil
	}}
}

// Deps are the collaborators of a Server.
type Deps struct {
	Config   config.HealthConfig
	Logger   *logging.Logger
	Checks   []Check
	Gatherer prometheus.Gatherer
	Version  string

	// CheckTimeout bounds each probe. Zero means five seconds.
	CheckTimeout time.Duration
}

// Server is the health and metrics HTTP server.
type Server struct {
	cfg          config.HealthConfig
	logger       *logging.Logger
	checks       []Check
	gatherer     prometheus.Gatherer
	version      string
	checkTimeout time.Duration
	startTime    time.Time
	handler      http.Handler
}

// New creates a Server. A nil Gatherer serves the default registry.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	for _, c := range deps.Checks {
		if c.Name == "" || c.Probe == nil {
			return nil, fmt.Errorf("health check %q is incomplete", c.Name)
		}
	}

	s := &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		checks:       append([]Check(nil), deps.Checks...),
		gatherer:     deps.Gatherer,
		version:      deps.Version,
		checkTimeout: deps.CheckTimeout,
		startTime:    time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.checkTimeout <= 0 {
		s.checkTimeout = defaultCheckTimeout
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down health server: %w", err)
	}
	s.logger.Info("health server stopped")
	return nil
}

// NewRegistry returns a Prometheus registry carrying the Go runtime and
// process collectors plus cs.
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	all := append([]prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}, cs...)
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return reg, nil
}
