// Command mcp-mesh-dev is a single-process convenience harness for local
// development: it boots a registry alongside a couple of example agents so
// meshctl has something to list/call/trace without standing up separate
// processes or a database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcp-mesh/src/agent"
	"mcp-mesh/src/core/config"
	"mcp-mesh/src/core/database"
	"mcp-mesh/src/core/logger"
	"mcp-mesh/src/core/registry"
	"mcp-mesh/src/core/registry/tracing"
)

var version = "dev"

func main() {
	var (
		registryPort = flag.Int("registry-port", 8000, "Port the in-process registry binds to")
		agentPort    = flag.Int("agent-port", 8080, "Port the example agent's MCP server binds to")
		noAgents     = flag.Bool("no-agents", false, "Start only the registry, skip the example agents")
	)
	flag.Parse()

	cfg := config.LoadFromEnv()
	cfg.Port = *registryPort
	cfg.Database.DatabaseURL = ":memory:"
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg)
	appLogger.Info("Starting mcp-mesh-dev %s | %s", version, appLogger.GetStartupBanner())

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		appLogger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	serverCfg := registry.ServerConfig{
		EnableCORS:          cfg.EnableCORS,
		AllowedOrigins:      cfg.AllowedOrigins,
		AccessLog:           cfg.AccessLog,
		EnableProxy:         cfg.EnableProxy,
		HealthCheckInterval: time.Duration(cfg.HealthCheckInterval) * time.Second,
		UnhealthyTimeout:    time.Duration(cfg.UnhealthyTimeout) * time.Second,
		Tracing:             tracing.Config{Enabled: cfg.TracingEnabled},
	}
	server, err := registry.NewServer(db, serverCfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to build registry server: %v", err)
		os.Exit(1)
	}

	registryAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	go func() {
		appLogger.Info("registry listening on %s", registryAddr)
		if err := server.Run(registryAddr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("registry stopped: %v", err)
		}
	}()

	var exampleServer *http.Server
	if !*noAgents {
		os.Setenv("MCP_MESH_AGENT_NAME", getenvOr("MCP_MESH_AGENT_NAME", "dev-example-agent"))
		os.Setenv("MCP_MESH_REGISTRY_URL", fmt.Sprintf("http://localhost:%d", *registryPort))
		os.Setenv("MCP_MESH_HTTP_PORT", fmt.Sprintf("%d", *agentPort))
		registerExampleTools()

		ctx := context.Background()
		proc, err := agent.StartAgent(ctx)
		if err != nil {
			appLogger.Error("example agent failed to start: %v", err)
			os.Exit(1)
		}
		defer proc.Shutdown()

		exampleServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", *agentPort),
			Handler: exampleMCPHandler(proc),
		}
		go func() {
			appLogger.Info("example agent %s listening on :%d", proc.AgentID, *agentPort)
			if err := exampleServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLogger.Error("example agent HTTP server stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	appLogger.Info("received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if exampleServer != nil {
		_ = exampleServer.Shutdown(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("error during registry shutdown: %v", err)
	}
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// registerExampleTools wires two trivial demo tools so list/call/trace have
// something concrete to exercise. Neither declares a dependency.
func registerExampleTools() {
	agent.Register(agent.ToolMeta{
		FunctionName: "greet",
		Capability:   "greeting",
		Tags:         []string{"demo", "example"},
		Version:      "1.0.0",
		Description:  "Returns a friendly greeting for the given name.",
		Fn: func(args map[string]interface{}, deps []*agent.Injected) (interface{}, error) {
			name, _ := args["name"].(string)
			if name == "" {
				name = "world"
			}
			return map[string]string{"message": fmt.Sprintf("Hello, %s!", name)}, nil
		},
	})

	agent.Register(agent.ToolMeta{
		FunctionName: "add_numbers",
		Capability:   "arithmetic",
		Tags:         []string{"demo", "example"},
		Version:      "1.0.0",
		Description:  "Adds two numbers together.",
		Fn: func(args map[string]interface{}, deps []*agent.Injected) (interface{}, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return map[string]float64{"sum": a + b}, nil
		},
	})
}

type mcpToolCallRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type mcpToolCallResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *mcpError   `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// exampleMCPHandler is a minimal JSON-RPC dispatcher over the example
// agent's injection wrappers. The agent runtime package deliberately has no
// inbound HTTP surface of its own (that half is an external collaborator);
// this handler exists only so mcp-mesh-dev has something for meshctl call
// to reach.
func exampleMCPHandler(proc *agent.Processor) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		var req mcpToolCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		name, _ := req.Params["name"].(string)
		args, _ := req.Params["arguments"].(map[string]interface{})

		wrapper, ok := proc.Wrappers[name]
		if !ok {
			writeMCPResponse(w, req.ID, nil, &mcpError{Code: -32601, Message: "tool not found: " + name})
			return
		}
		result, err := wrapper.Invoke(args)
		if err != nil {
			writeMCPResponse(w, req.ID, nil, &mcpError{Code: -32000, Message: err.Error()})
			return
		}
		writeMCPResponse(w, req.ID, result, nil)
	})
	return mux
}

func writeMCPResponse(w http.ResponseWriter, id int, result interface{}, mcpErr *mcpError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(mcpToolCallResponse{JSONRPC: "2.0", ID: id, Result: result, Error: mcpErr})
}
