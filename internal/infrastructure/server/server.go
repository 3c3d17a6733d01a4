package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/webbridge/internal/api/http"
	"github.com/GriffinCanCode/webbridge/internal/api/middleware"
	"github.com/GriffinCanCode/webbridge/internal/api/ws"
	"github.com/GriffinCanCode/webbridge/internal/domain/session"
	"github.com/GriffinCanCode/webbridge/internal/domain/window"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/tracing"
)

// Version is reported by /health.
const Version = "0.1.0"

// WebSocketPath is the route browsers connect to.
const WebSocketPath = "/_bridge/ws/:id"

// Server wraps the HTTP server and the window manager it serves
type Server struct {
	router  *gin.Engine
	manager *window.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	mu       sync.Mutex
	http     *http.Server // Protected by mu
	listener net.Listener // Protected by mu
	baseURL  string       // Protected by mu
	serveErr chan error

	closeOnce sync.Once
}

// New assembles the router and the window manager. Nothing listens until a
// window is shown or Start is called.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing bridge server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("multi_client", cfg.Bridge.MultiClient),
		zap.Bool("use_cookies", cfg.Bridge.UseCookies),
		zap.Bool("event_blocking", cfg.Bridge.EventBlocking),
		zap.Duration("script_timeout", cfg.Bridge.ScriptTimeout),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("webbridge", logger.Component("trace"))

	manager := window.NewManager(window.Options{
		Mode: session.Mode{
			MultiClient: cfg.Bridge.MultiClient,
			UseCookies:  cfg.Bridge.UseCookies,
		},
		EventBlocking:   cfg.Bridge.EventBlocking,
		ScriptTimeout:   cfg.Bridge.ScriptTimeout,
		RootFolder:      cfg.Bridge.RootFolder,
		DisconnectGrace: cfg.Bridge.DisconnectGrace,
	}, logger.Component("window")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics", "/_bridge/"))

	handlers := apihttp.NewHandlers(manager, metrics, logger.Component("http"), apihttp.Config{
		MultiClient: cfg.Bridge.MultiClient,
		UseCookies:  cfg.Bridge.UseCookies,
		CookieName:  ws.CookieName,
		Version:     Version,
	})
	wsHandler := ws.NewHandler(manager, tracer, logger.Component("ws"), ws.Options{
		MaxMessageSize: cfg.Bridge.MaxMessageSize,
		SendBuffer:     cfg.Bridge.SendBuffer,
	})

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET(apihttp.ClientScriptPath, handlers.ClientScript)
	router.GET("/win/:id/*filepath", handlers.Page)
	router.GET(WebSocketPath, wsHandler.HandleConnection)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s := &Server{
		router:   router,
		manager:  manager,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
		serveErr: make(chan error, 1),
	}
	manager.SetServer(s)

	logger.Info("Server initialized successfully")
	return s, nil
}

// Manager returns the window manager bound to this server.
func (s *Server) Manager() *window.Manager {
	return s.manager
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address if it is not listening yet and
// returns the base URL. It is called by the manager the first time a window
// is shown.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baseURL != "" {
		return s.baseURL, nil
	}

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.baseURL = baseURL(ln.Addr())

	srv := s.http
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
	}()

	s.logger.Info("Starting HTTP server", zap.String("url", s.baseURL))
	return s.baseURL, nil
}

// URL returns the base URL, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Run starts the listener and blocks until ctx is cancelled, the manager
// exits or serving fails. It always shuts down before returning.
func (s *Server) Run(ctx context.Context) error {
	if _, err := s.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down")
	case <-s.manager.Done():
		s.logger.Info("Bridge exited, shutting down")
	case runErr = <-s.serveErr:
		s.logger.Error("HTTP server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops accepting connections, then exits the manager so pending
// scripts fail and windows are released. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		s.mu.Lock()
		srv := s.http
		s.mu.Unlock()

		if srv != nil {
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
				s.logger.Error("Failed to shut down HTTP server", zap.Error(shutdownErr))
				err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
			}
		}

		s.manager.Exit()
		s.tracer.Close()

		_ = s.logger.Sync()
	})
	return err
}

// baseURL maps wildcard listen addresses to localhost so the URL is
// something a browser can open.
func baseURL(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return "http://" + addr.String()
	}
	host := tcp.IP.String()
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(tcp.Port)))
}
