// Package config resolves registry process configuration from environment
// variables, following the precedence and defaults the rest of the mesh's
// ambient stack uses (env var > default).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"mcp-mesh/src/core/database"
)

// Config holds all configuration for the MCP Mesh Registry.
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8000"`

	Database *database.Config

	RegistryName string `env:"REGISTRY_NAME" envDefault:"mcp-mesh-registry"`

	// Liveness monitor tuning (spec §4.3).
	HealthCheckInterval int `env:"HEALTH_CHECK_INTERVAL" envDefault:"30"` // seconds
	UnhealthyTimeout    int `env:"UNHEALTHY_TIMEOUT" envDefault:"90"`     // seconds

	EnableCORS     bool     `env:"ENABLE_CORS" envDefault:"true"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	LogLevel  string `env:"MCP_MESH_LOG_LEVEL" envDefault:"INFO"`
	DebugMode bool   `env:"MCP_MESH_DEBUG_MODE" envDefault:"false"`
	AccessLog bool   `env:"ACCESS_LOG" envDefault:"true"`

	TracingEnabled bool `env:"MCP_MESH_DISTRIBUTED_TRACING_ENABLED" envDefault:"false"`

	// EnableProxy toggles the registry's /proxy passthrough (§5 of
	// SPEC_FULL.md) that lets meshctl reach agents without direct network
	// access. The registry still never participates in the data path: it
	// forwards bytes without interpreting or retrying the call.
	EnableProxy bool `env:"ENABLE_REGISTRY_PROXY" envDefault:"true"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	cfg := &Config{
		Host:                getEnvString("HOST", "0.0.0.0"),
		Port:                getEnvInt("PORT", 8000),
		RegistryName:        getEnvString("REGISTRY_NAME", "mcp-mesh-registry"),
		HealthCheckInterval: getEnvInt("HEALTH_CHECK_INTERVAL", 30),
		UnhealthyTimeout:    getEnvInt("UNHEALTHY_TIMEOUT", 90),
		EnableCORS:          getEnvBool("ENABLE_CORS", true),
		AllowedOrigins:      getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:            getEnvString("MCP_MESH_LOG_LEVEL", "INFO"),
		DebugMode:           getEnvBool("MCP_MESH_DEBUG_MODE", false),
		AccessLog:           getEnvBool("ACCESS_LOG", true),
		TracingEnabled:      getEnvBool("MCP_MESH_DISTRIBUTED_TRACING_ENABLED", false),
		EnableProxy:         getEnvBool("ENABLE_REGISTRY_PROXY", true),
	}

	cfg.Database = &database.Config{
		DatabaseURL:        getEnvString("DATABASE_URL", "mcp_mesh_registry.db"),
		ConnectionTimeout:  getEnvInt("DB_CONNECTION_TIMEOUT", 30),
		BusyTimeout:        getEnvInt("DB_BUSY_TIMEOUT", 5000),
		JournalMode:        getEnvString("DB_JOURNAL_MODE", "WAL"),
		Synchronous:        getEnvString("DB_SYNCHRONOUS", "NORMAL"),
		CacheSize:          getEnvInt("DB_CACHE_SIZE", 10000),
		EnableForeignKeys:  getEnvBool("DB_ENABLE_FOREIGN_KEYS", true),
		MaxOpenConnections: getEnvInt("DB_MAX_OPEN_CONNECTIONS", 25),
		MaxIdleConnections: getEnvInt("DB_MAX_IDLE_CONNECTIONS", 5),
		ConnMaxLifetime:    getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	return cfg
}

// Validate ensures configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HealthCheckInterval < 1 {
		return fmt.Errorf("health check interval must be positive: %d", c.HealthCheckInterval)
	}
	if c.UnhealthyTimeout < 1 {
		return fmt.Errorf("unhealthy timeout must be positive: %d", c.UnhealthyTimeout)
	}

	validLogLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}
	upper := strings.ToUpper(c.LogLevel)
	if !validLogLevels[upper] {
		return fmt.Errorf("invalid log level: %s (valid: DEBUG, INFO, WARNING, ERROR, CRITICAL)", c.LogLevel)
	}
	if c.DebugMode {
		c.LogLevel = "DEBUG"
	}
	return nil
}

// IsDebugMode reports whether verbose logging is requested.
func (c *Config) IsDebugMode() bool {
	return c.DebugMode || strings.ToUpper(c.LogLevel) == "DEBUG"
}

// ShouldLogAtLevel reports whether a message at the given level should be emitted.
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

func getEnvStringSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	return defaultValue
}
