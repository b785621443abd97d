package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/astrohub/astrohub-core/internal/audit"
	"github.com/astrohub/astrohub-core/internal/auth"
	"github.com/astrohub/astrohub-core/internal/bus"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/discovery"
	"github.com/astrohub/astrohub-core/internal/dispatch"
	"github.com/astrohub/astrohub-core/internal/infrastructure/config"
	"github.com/astrohub/astrohub-core/internal/infrastructure/database"
	"github.com/astrohub/astrohub-core/internal/infrastructure/logging"
	"github.com/astrohub/astrohub-core/internal/lifecycle"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Lifecycle  *lifecycle.Manager
	Dispatcher *dispatch.Dispatcher
	Discovery  *discovery.Service
	Events     *bus.Bus
	DB         *database.DB
	Users      auth.UserRepository
	Tokens     auth.TokenRepository
	Audit      audit.Repository
	Version    string
}

// Server is the HTTP API server for AstroHub Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *device.Registry
	lifecycle  *lifecycle.Manager
	dispatcher *dispatch.Dispatcher
	discovery  *discovery.Service
	events     *bus.Bus
	db         *database.DB
	userRepo   auth.UserRepository
	tokenRepo  auth.TokenRepository
	auditRepo  audit.Repository
	auditCh    chan *audit.AuditLog
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	tickets    *ticketStore
	busSubs    []bus.Subscription
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		registry:   deps.Registry,
		lifecycle:  deps.Lifecycle,
		dispatcher: deps.Dispatcher,
		discovery:  deps.Discovery,
		events:     deps.Events,
		db:         deps.DB,
		userRepo:   deps.Users,
		tokenRepo:  deps.Tokens,
		auditRepo:  deps.Audit,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the event
// bus for real-time WebSocket broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	// Relay registry events to WebSocket clients
	s.subscribeEvents()

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
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	for _, sub := range s.busSubs {
		s.events.Unsubscribe(sub)
	}
	s.busSubs = nil

	// Cancel background goroutines (hub, ticket cleanup, audit drain)
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
