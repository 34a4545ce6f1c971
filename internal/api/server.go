package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-danfoss/internal/bridges/danfoss"
	"github.com/nerrad567/gray-logic-danfoss/internal/device"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionController is the part of the device session the API drives.
// It is satisfied by *danfoss.Controller.
type SessionController interface {
	Status(ctx context.Context) (danfoss.Status, error)
	SetCapability(ctx context.Context, capability string, value any) error
}

// SettingsService reads and changes persisted device settings.
// It is satisfied by *danfoss.Bridge.
type SettingsService interface {
	Settings(ctx context.Context) (device.Settings, error)
	UpdateSettings(ctx context.Context, patch device.SettingsPatch) (device.Settings, error)
	DeleteDevice(ctx context.Context) error
}

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *device.Store
	Controller SessionController
	Settings   SettingsService

	// History is optional; the history endpoint answers 503 without it.
	History device.StateHistoryRepository

	// Gatherer is optional; /metrics is not mounted without it.
	Gatherer prometheus.Gatherer

	// Checks are reported per component by /health, keyed by name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for the ventilation bridge.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *device.Store
	controller SessionController
	settings   SettingsService
	history    device.StateHistoryRepository
	gatherer   prometheus.Gatherer
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server. The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("session controller is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings service is required")
	}
	if deps.Config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("api auth secret is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		controller: deps.Controller,
		settings:   deps.Settings,
		history:    deps.History,
		gatherer:   deps.Gatherer,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        NewHub(deps.WS, deps.Logger),
	}

	deps.Store.OnChange(s.broadcastChange)
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// broadcastChange relays store changes to WebSocket subscribers.
func (s *Server) broadcastChange(change device.Change) {
	s.hub.Broadcast(ChannelStateChanged, change)
}
