// Package api provides the HTTP REST API and WebSocket server for Tickline Core.
//
// It exposes script execution, remote action invocation, shared state access,
// and system management endpoints to operator tooling and dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tealfork/tickline-core/internal/engine"
	"github.com/tealfork/tickline-core/internal/infrastructure/config"
	"github.com/tealfork/tickline-core/internal/infrastructure/database"
	"github.com/tealfork/tickline-core/internal/infrastructure/logging"
	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
	"github.com/tealfork/tickline-core/internal/rpc"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RunPruner deletes old run history rows. Satisfied by
// *engine.SQLiteRepository; declared here so the API server does not
// depend on the concrete repository type.
type RunPruner interface {
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Engine      *engine.Engine
	State       *engine.Store
	Actions     *rpc.Table
	Registry    *rpc.Registry
	MQTT        *mqtt.Client
	DB          *database.DB
	Runs        RunPruner // optional: enables POST /runs/prune
	ExternalHub *Hub      // If set, the server uses this hub instead of creating its own
	Version     string

	// RunHistoryLimit is the default page size for run history queries.
	RunHistoryLimit int
}

// Server is the HTTP API server for Tickline Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	engine      *engine.Engine
	state       *engine.Store
	actions     *rpc.Table
	registry    *rpc.Registry
	mqtt        *mqtt.Client
	db          *database.DB
	runsRepo    RunPruner
	runLimit    int
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
	startTime   time.Time
}

// defaultRunHistoryLimit is used when Deps.RunHistoryLimit is unset.
const defaultRunHistoryLimit = 20

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("script engine is required")
	}
	// MQTT is optional — state/filter relay to WebSocket is disabled without it

	runLimit := deps.RunHistoryLimit
	if runLimit <= 0 {
		runLimit = defaultRunHistoryLimit
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		engine:   deps.Engine,
		state:    deps.State,
		actions:  deps.Actions,
		registry: deps.Registry,
		mqtt:     deps.MQTT,
		db:       deps.DB,
		runsRepo: deps.Runs,
		runLimit: runLimit,
		version:  deps.Version,
	}

	// Use externally-provided hub if available (needed when the engine also
	// requires the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT state
// and filter topics for real-time WebSocket broadcast, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startTime = time.Now()

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Relay broker state and filter topics to WebSocket subscribers
	if err := s.subscribeBrokerRelay(); err != nil {
		s.logger.Warn("failed to subscribe to broker topics for WebSocket relay", "error", err)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, broker relay)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
