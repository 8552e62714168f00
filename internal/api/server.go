package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openlaundry/laundry-core/internal/appversion"
	"github.com/openlaundry/laundry-core/internal/device"
	"github.com/openlaundry/laundry-core/internal/gateway"
	"github.com/openlaundry/laundry-core/internal/infrastructure/config"
	"github.com/openlaundry/laundry-core/internal/infrastructure/logging"
	"github.com/openlaundry/laundry-core/internal/notice"
	"github.com/openlaundry/laundry-core/internal/oplog"
	"github.com/openlaundry/laundry-core/internal/push"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Gateway  config.GatewayConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Devices  device.Repository
	Registry *gateway.Registry
	Router   *gateway.Router
	Logs     oplog.Sink
	Push     push.Repository
	Notices  notice.Repository
	Versions appversion.Repository

	// ExternalHub lets the caller share one hub between the server and the
	// gateway router. If nil the server creates its own.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP and WebSocket server for Laundry Core.
//
// It manages the HTTP listener, routes, middleware, the observer hub, and
// the hardware socket endpoint. The server is created with New() and
// started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	gwCfg    config.GatewayConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	devices  device.Repository
	registry *gateway.Registry
	gwRouter *gateway.Router
	logs     oplog.Sink
	push     push.Repository
	notices  notice.Repository
	versions appversion.Repository
	version  string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("message router is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		gwCfg:    deps.Gateway,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		devices:  deps.Devices,
		registry: deps.Registry,
		gwRouter: deps.Router,
		logs:     deps.Logs,
		push:     deps.Push,
		notices:  deps.Notices,
		versions: deps.Versions,
		version:  deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the observer hub, creating it if needed. The gateway router
// broadcasts through the returned hub.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the observer hub (unless one was injected externally) and
// launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

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
