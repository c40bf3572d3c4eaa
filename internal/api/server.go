package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/fanbridge/internal/bridges/fan"
	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/logging"
	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Dispatcher executes fan commands. *fan.Dispatcher satisfies it.
type Dispatcher interface {
	ToggleFanPower() fan.CommandResult
	SetFanOutput(raw any) (fan.CommandResult, error)
	Stats() fan.DispatcherStats
}

// StateReader returns the current fan state. *fan.Query satisfies it.
type StateReader interface {
	Snapshot() fan.DeviceState
}

// InboundStats reports telemetry counters. *fan.Bridge satisfies it.
type InboundStats interface {
	Stats() fan.InboundStats
}

// BusStatus reports the bus connection. *mqtt.Client satisfies it.
type BusStatus interface {
	State() mqtt.ConnectionState
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Dispatcher Dispatcher
	State      StateReader
	Inbound    InboundStats // optional, omitted from metrics when nil
	MQTT       BusStatus    // optional, health reports degraded when nil
	Version    string
}

// Server is the HTTP API server for the fan bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	dispatcher Dispatcher
	state      StateReader
	inbound    InboundStats
	mqtt       BusStatus
	version    string
	startTime  time.Time
	server     *http.Server
	listener   net.Listener
	hub        *Hub
	cancel     context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The WebSocket hub is
// created here so state changes can be published before the listener opens.
//
// Parameters:
//   - deps: Required dependencies (logger, dispatcher, state reader)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("state reader is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
		state:      deps.State,
		inbound:    deps.Inbound,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.Seed(EventFanState, statePayload(s.state.Snapshot()))

	return s, nil
}

// NotifyState broadcasts a state change to WebSocket clients.
// It is meant to be registered with fan.Store.SetOnChange and never blocks.
func (s *Server) NotifyState(st fan.DeviceState) {
	s.hub.Broadcast(EventFanState, statePayload(st))
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, binds the listener synchronously so address
// errors surface here, and serves in a background goroutine. The server
// can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the hub lifetime (not the listener)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	addr := s.server.Addr
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		s.server = nil
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
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
