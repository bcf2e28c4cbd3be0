// Package api provides the local HTTP status endpoint for the MyQ bridge.
//
// It exposes read-only bridge status plus a small set of operational
// actions (force a sync, change the poll interval) for debugging and
// monitoring. It binds to localhost by default and carries no
// authentication; access control is the network's job.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-myq/internal/bridge"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-myq/internal/registry"
)

// HTTP server timeouts.
const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second

	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second
)

// BridgeStatus is the bridge surface the API needs.
// *bridge.Bridge satisfies it.
type BridgeStatus interface {
	GetMetrics() bridge.BridgeMetrics
	TriggerSync(reason string)
	SetPollInterval(d time.Duration) error
}

// DeviceStore is the registry surface the API needs.
// *registry.SQLiteRegistry satisfies it.
type DeviceStore interface {
	List(ctx context.Context) ([]registry.Device, error)
	Get(ctx context.Context, ref string) (*registry.Device, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   BridgeStatus
	Registry DeviceStore
	Version  string
}

// Server is the local HTTP status server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	bridge   BridgeStatus
	registry DeviceStore
	version  string
	server   *http.Server
}

// New creates an API server. It is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		bridge:   deps.Bridge,
		registry: deps.Registry,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
