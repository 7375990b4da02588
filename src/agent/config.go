// Package agent implements the Agent Runtime Processor: the client-side
// engine embedded in every mesh agent process. It introspects locally
// declared tools, drives the heartbeat protocol against the registry,
// caches resolved dependency bindings, and hot-swaps proxy objects when
// resolutions change.
package agent

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config resolves agent-side runtime configuration. LoadFromEnv fills every
// scalar from its environment variable, falling back to the default; there
// is no marker-argument layer between the two.
type Config struct {
	AgentName string `env:"MCP_MESH_AGENT_NAME" envDefault:""`
	Namespace string `env:"MCP_MESH_NAMESPACE" envDefault:"default"`
	Version   string `env:"MCP_MESH_AGENT_VERSION" envDefault:"1.0.0"`
	Runtime   string `env:"MCP_MESH_RUNTIME" envDefault:"go"`

	RegistryURL string `env:"MCP_MESH_REGISTRY_URL" envDefault:"http://localhost:8000"`

	HTTPHost string `env:"MCP_MESH_HTTP_HOST" envDefault:""`
	HTTPPort int    `env:"MCP_MESH_HTTP_PORT" envDefault:"8080"`

	// HeadInterval and FullEvery drive the dual-frequency heartbeat loop
	// (spec §4.4): a HEAD liveness ping every HeadInterval, with a full
	// POST manifest refresh every FullEvery ticks.
	HeadInterval time.Duration `env:"MCP_MESH_HEAD_INTERVAL" envDefault:"5s"`
	FullEvery    int            `env:"MCP_MESH_FULL_EVERY" envDefault:"10"`

	HeadTimeout     time.Duration `env:"MCP_MESH_HEAD_TIMEOUT" envDefault:"10s"`
	FullTimeout     time.Duration `env:"MCP_MESH_FULL_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"MCP_MESH_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	LogLevel  string `env:"MCP_MESH_LOG_LEVEL" envDefault:"INFO"`
	DebugMode bool   `env:"MCP_MESH_DEBUG_MODE" envDefault:"false"`

	// RedisURL configures the session-affinity store (spec §9 Open
	// Questions); empty falls back to an in-process map.
	RedisURL string `env:"MCP_MESH_REDIS_URL" envDefault:""`
}

// LoadFromEnv builds a Config from environment variables, resolving the
// advertised HTTP host via UDP-socket self-discovery when unset, to avoid
// DNS round-trips and loopback confusion (spec §4.7).
func LoadFromEnv() *Config {
	cfg := &Config{
		AgentName:       os.Getenv("MCP_MESH_AGENT_NAME"),
		Namespace:       getEnvString("MCP_MESH_NAMESPACE", "default"),
		Version:         getEnvString("MCP_MESH_AGENT_VERSION", "1.0.0"),
		Runtime:         getEnvString("MCP_MESH_RUNTIME", "go"),
		RegistryURL:     getEnvString("MCP_MESH_REGISTRY_URL", "http://localhost:8000"),
		HTTPHost:        os.Getenv("MCP_MESH_HTTP_HOST"),
		HTTPPort:        getEnvInt("MCP_MESH_HTTP_PORT", 8080),
		HeadInterval:    getEnvDuration("MCP_MESH_HEAD_INTERVAL", 5*time.Second),
		FullEvery:       getEnvInt("MCP_MESH_FULL_EVERY", 10),
		HeadTimeout:     getEnvDuration("MCP_MESH_HEAD_TIMEOUT", 10*time.Second),
		FullTimeout:     getEnvDuration("MCP_MESH_FULL_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("MCP_MESH_SHUTDOWN_TIMEOUT", 5*time.Second),
		LogLevel:        getEnvString("MCP_MESH_LOG_LEVEL", "INFO"),
		DebugMode:       getEnvBool("MCP_MESH_DEBUG_MODE", false),
		RedisURL:        os.Getenv("MCP_MESH_REDIS_URL"),
	}

	if cfg.HTTPHost == "" {
		cfg.HTTPHost = detectOutboundIP()
	}
	return cfg
}

// Validate ensures configuration is internally consistent.
func (c *Config) Validate() error {
	if c.AgentName == "" {
		return fmt.Errorf("agent name must be set (MCP_MESH_AGENT_NAME)")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.FullEvery < 1 {
		return fmt.Errorf("full-refresh interval must be positive: %d", c.FullEvery)
	}
	validLogLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}
	if !validLogLevels[strings.ToUpper(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.DebugMode {
		c.LogLevel = "DEBUG"
	}
	return nil
}

// Endpoint returns the URL this agent advertises to the registry.
func (c *Config) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.HTTPHost, c.HTTPPort)
}

// IsDebugMode satisfies logger.LevelConfig.
func (c *Config) IsDebugMode() bool {
	return c.DebugMode || strings.ToUpper(c.LogLevel) == "DEBUG"
}

// ShouldLogAtLevel satisfies logger.LevelConfig.
func (c *Config) ShouldLogAtLevel(level string) bool {
	priority := map[string]int{"DEBUG": 0, "INFO": 1, "WARNING": 2, "ERROR": 3, "CRITICAL": 4}
	current, ok := priority[strings.ToUpper(c.LogLevel)]
	if !ok {
		current = 1
	}
	check, ok := priority[strings.ToUpper(level)]
	if !ok {
		return false
	}
	return check >= current
}

// detectOutboundIP opens a UDP socket to a sentinel address and reads the
// local side to discover this host's outbound-facing IP, without actually
// sending a packet (spec §4.7).
func detectOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
