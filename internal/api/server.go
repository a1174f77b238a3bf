package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/logging"
	"github.com/rodolfodiegosilva/iot-system-api/internal/monitoring"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EventPublisher mirrors domain events to the broker. *mqtt.Client
// satisfies it.
type EventPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Authenticator *auth.Authenticator
	Accounts      *auth.Service
	Devices       *device.Service
	Monitorings   *monitoring.Service
	Audit         *audit.Recorder
	Sweeper       *auth.RevocationSweeper

	Events  EventPublisher // optional
	DB      *sql.DB        // optional, pool stats for /metrics
	Version string
}

// Server is the HTTP API server for the IoT system.
//
// It owns the router, the middleware chain, the WebSocket hub and the
// Prometheus registry. Create with New, run with Start.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	secCfg config.SecurityConfig
	logger *logging.Logger

	authn       *auth.Authenticator
	accounts    *auth.Service
	devices     *device.Service
	monitorings *monitoring.Service
	audit       *audit.Recorder
	sweeper     *auth.RevocationSweeper
	events      EventPublisher
	db          *sql.DB

	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	metrics   *metrics
	limiter   *ipRateLimiter
	proxies   []netip.Prefix
	cancel    context.CancelFunc
}

// New creates a new API server and subscribes the WebSocket hub to
// device and monitoring changes. The server is not listening until
// Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Authenticator == nil:
		return nil, errors.New("authenticator is required")
	case deps.Accounts == nil:
		return nil, errors.New("account service is required")
	case deps.Devices == nil:
		return nil, errors.New("device service is required")
	case deps.Monitorings == nil:
		return nil, errors.New("monitoring service is required")
	}

	proxies, err := deps.Config.TrustedProxyPrefixes()
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger.With("component", "api"),
		authn:       deps.Authenticator,
		accounts:    deps.Accounts,
		devices:     deps.Devices,
		monitorings: deps.Monitorings,
		audit:       deps.Audit,
		sweeper:     deps.Sweeper,
		events:      deps.Events,
		db:          deps.DB,
		version:     deps.Version,
		startTime:   time.Now(),
		tickets:     newTicketStore(),
		proxies:     proxies,
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.metrics = newMetrics(s)

	if rl := deps.Security.RateLimit; rl.Enabled {
		s.limiter = newIPRateLimiter(rl.RequestsPerMinute, rl.Burst)
	}

	s.devices.SetObserver(s.onDeviceEvent)
	s.monitorings.SetObserver(s.onMonitoringEvent)
	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// ctx bounds the hub, ticket cleanup and rate limiter housekeeping; Close
// stops them too.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	if s.limiter != nil {
		go s.limiter.cleanLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to ten seconds
// for in-flight requests.
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
