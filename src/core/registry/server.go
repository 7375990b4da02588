package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mcp-mesh/src/core/database"
	"mcp-mesh/src/core/logger"
	"mcp-mesh/src/core/registry/tracing"
)

// Server wires the gin engine, the business-logic service, the liveness
// monitor, and the optional proxy/tracing operational endpoints together.
type Server struct {
	engine        *gin.Engine
	service       *Service
	handlers      *Handlers
	proxy         *Proxy
	healthMonitor *AgentHealthMonitor
	tracer        *tracing.Manager
	startTime     time.Time
	enableProxy   bool
	httpServer    *http.Server
}

// ServerConfig carries the knobs NewServer needs from config.Config without
// importing it directly (avoids a core/registry -> core/config cycle).
type ServerConfig struct {
	EnableCORS       bool
	AllowedOrigins   []string
	AccessLog        bool
	EnableProxy      bool
	HealthCheckInterval time.Duration
	UnhealthyTimeout    time.Duration
	Tracing          tracing.Config
}

// NewServer builds the registry HTTP server over a Database.
func NewServer(db *database.Database, cfg ServerConfig, log *logger.Logger) (*Server, error) {
	store := NewStore(db)
	service := NewService(db, log, RegistryConfig{UnhealthyTimeout: cfg.UnhealthyTimeout})
	handlers := NewHandlers(service, log)
	proxy := NewProxy(store, log)
	healthMonitor := NewAgentHealthMonitor(store, log, cfg.UnhealthyTimeout, cfg.HealthCheckInterval)

	tracer, err := tracing.NewManager(cfg.Tracing)
	if err != nil {
		return nil, err
	}

	log.SetGinMode()
	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.AccessLog {
		engine.Use(gin.Logger())
	}
	if cfg.EnableCORS {
		engine.Use(corsMiddleware(cfg.AllowedOrigins))
	}

	server := &Server{
		engine:        engine,
		service:       service,
		handlers:      handlers,
		proxy:         proxy,
		healthMonitor: healthMonitor,
		tracer:        tracer,
		startTime:     time.Now(),
		enableProxy:   cfg.EnableProxy,
	}

	server.setupRoutes()
	return server, nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handlers.GetRoot)
	s.engine.GET("/health", s.handlers.GetHealth)

	s.engine.POST("/agents/register", s.handlers.RegisterAgent)
	s.engine.POST("/heartbeat", s.handlers.SendHeartbeat)
	s.engine.HEAD("/heartbeat/:agent_id", s.handlers.HeadHeartbeat)
	s.engine.GET("/agents", s.handlers.ListAgents)
	s.engine.GET("/agents/:agent_id", s.handlers.GetAgentStatus)
	s.engine.DELETE("/agents/:agent_id", s.handlers.UnregisterAgent)

	if s.enableProxy {
		// Wildcard routes: gin's :target only captures one path segment, and
		// a proxied target is itself a multi-segment path.
		s.engine.POST("/proxy/*target", func(c *gin.Context) { s.proxy.Forward(c, c.Param("target")) })
		s.engine.GET("/proxy/*target", func(c *gin.Context) { s.proxy.Forward(c, c.Param("target")) })
	}

	s.engine.GET("/trace/info", s.handleTraceInfo)
}

// handleTraceInfo reports the correlation header/ID format agents must use,
// and whether OTLP export is currently active — this core package owns the
// format, not the export or storage of complete traces (see
// src/core/registry/tracing).
func (s *Server) handleTraceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"header_name":   tracing.HeaderName,
		"id_format":     "otel-compatible (16 byte trace id, 8 byte span id, hex-encoded)",
		"export_active": s.tracer.Enabled(),
	})
}

// Run starts the health monitor and the HTTP server, blocking until the
// server stops.
func (s *Server) Run(addr string) error {
	s.healthMonitor.Start()
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the health monitor and gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.healthMonitor.Stop()
	if err := s.tracer.Shutdown(ctx); err != nil {
		return err
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Engine exposes the underlying gin engine, mainly for tests that want to
// drive requests with httptest without binding a real port.
func (s *Server) Engine() *gin.Engine { return s.engine }

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(allowedOrigins) > 0 && allowedOrigins[0] != "*" {
			origin = allowedOrigins[0]
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, HEAD, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+tracing.HeaderName)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
