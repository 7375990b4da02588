package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcp-mesh/src/core/config"
	"mcp-mesh/src/core/database"
	"mcp-mesh/src/core/logger"
	"mcp-mesh/src/core/registry"
	"mcp-mesh/src/core/registry/tracing"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	var (
		host        = flag.String("host", "", "Host to bind the server to (overrides HOST env var)")
		port        = flag.Int("port", 0, "Port to bind the server to (overrides PORT env var)")
		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show help information")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "MCP Mesh Registry Service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HOST                     - Host to bind to (default: 0.0.0.0)\n")
		fmt.Fprintf(os.Stderr, "  PORT                     - Port to bind to (default: 8000)\n")
		fmt.Fprintf(os.Stderr, "  DATABASE_URL             - Database connection URL (sqlite file path, or postgres://...)\n")
		fmt.Fprintf(os.Stderr, "  MCP_MESH_LOG_LEVEL       - Log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)\n")
		fmt.Fprintf(os.Stderr, "  HEALTH_CHECK_INTERVAL    - Liveness sweep interval in seconds (default: 30)\n")
		fmt.Fprintf(os.Stderr, "  UNHEALTHY_TIMEOUT        - Agent eviction timeout in seconds (default: 90)\n")
		fmt.Fprintf(os.Stderr, "  ENABLE_REGISTRY_PROXY    - Enable the /proxy passthrough (default: true)\n")
		fmt.Fprintf(os.Stderr, "  MCP_MESH_DISTRIBUTED_TRACING_ENABLED - Enable OTLP span export (default: false)\n")
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Printf("MCP Mesh Registry %s\n", version)
		return
	}

	cfg := config.LoadFromEnv()
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}

	appLogger := logger.New(cfg)
	appLogger.SetGinMode()
	appLogger.Info("Starting MCP Mesh Registry Service | %s", appLogger.GetStartupBanner())

	appLogger.Info("Initializing database: %s", cfg.Database.DatabaseURL)
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		appLogger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Warning("Failed to close database: %v", err)
		}
	}()

	serverCfg := registry.ServerConfig{
		EnableCORS:          cfg.EnableCORS,
		AllowedOrigins:      cfg.AllowedOrigins,
		AccessLog:           cfg.AccessLog,
		EnableProxy:         cfg.EnableProxy,
		HealthCheckInterval: time.Duration(cfg.HealthCheckInterval) * time.Second,
		UnhealthyTimeout:    time.Duration(cfg.UnhealthyTimeout) * time.Second,
		Tracing: tracing.Config{
			Enabled: cfg.TracingEnabled,
		},
	}

	server, err := registry.NewServer(db, serverCfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to build server: %v", err)
		os.Exit(1)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		appLogger.Info("Received signal %v, initiating graceful shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("Error during server shutdown: %v", err)
		}

		appLogger.Info("Registry service stopped")
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	appLogger.Info("MCP Mesh Registry Service listening on %s", addr)
	if err := server.Run(addr); err != nil {
		appLogger.Error("Failed to start server: %v", err)
		os.Exit(1)
	}
}
