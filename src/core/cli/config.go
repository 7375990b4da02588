package cli

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// CLIConfig holds the settings meshctl needs to reach a registry: where it
// lives, how long to wait for it, and how chatty to be.
type CLIConfig struct {
	RegistryHost string `json:"registry_host"` // default: "localhost"
	RegistryPort int    `json:"registry_port"` // default: 8000
	LogLevel     string `json:"log_level"`     // default: "INFO"
	RequestTimeout int  `json:"request_timeout"` // default: 30 (seconds)

	Version      string    `json:"version"`
	LastModified time.Time `json:"last_modified"`

	mu sync.RWMutex `json:"-"`
}

// ConfigVersion is the current configuration schema version.
const ConfigVersion = "2.0.0"

// DefaultConfig returns the default configuration.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		RegistryHost:   "localhost",
		RegistryPort:   8000,
		LogLevel:       "INFO",
		RequestTimeout: 30,
		Version:        ConfigVersion,
		LastModified:   time.Now(),
	}
}

// LoadConfig loads configuration with precedence: CLI flags > config file > environment > defaults.
func LoadConfig() (*CLIConfig, error) {
	config := DefaultConfig()

	loadFromEnvironment(config)

	if err := loadFromConfigFile(config); err != nil {
		fmt.Printf("Warning: Failed to load config file: %v\n", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadFromEnvironment(config *CLIConfig) {
	config.mu.Lock()
	defer config.mu.Unlock()

	if val := os.Getenv("MCP_MESH_REGISTRY_HOST"); val != "" {
		config.RegistryHost = val
	}
	if val := os.Getenv("MCP_MESH_REGISTRY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil && port > 0 && port <= 65535 {
			config.RegistryPort = port
		}
	}
	if val := os.Getenv("MCP_MESH_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("MCP_MESH_REQUEST_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil && timeout > 0 {
			config.RequestTimeout = timeout
		}
	}
}

// loadFromConfigFile loads configuration from the platform config directory.
func loadFromConfigFile(config *CLIConfig) error {
	configPath := getConfigFilePath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := ioutil.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var fileConfig CLIConfig
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.mu.Lock()
	mergeConfigurations(config, &fileConfig)
	config.mu.Unlock()

	return nil
}

// mergeConfigurations overlays non-zero values from a file config onto the running config.
func mergeConfigurations(target *CLIConfig, source *CLIConfig) {
	if source.RegistryHost != "" {
		target.RegistryHost = source.RegistryHost
	}
	if source.RegistryPort != 0 {
		target.RegistryPort = source.RegistryPort
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.RequestTimeout != 0 {
		target.RequestTimeout = source.RequestTimeout
	}
	target.LastModified = time.Now()
}

// getConfigFilePath returns the configuration file path for the current platform.
func getConfigFilePath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			configDir = filepath.Join(appData, "mcp_mesh")
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(homeDir, ".mcp_mesh")
		} else {
			return ".\\cli_config.json"
		}
	case "darwin":
		if homeDir, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(homeDir, "Library", "Application Support", "mcp_mesh")
		} else {
			return "./cli_config.json"
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mcp_mesh")
		} else if homeDir, err := os.UserHomeDir(); err == nil {
			configDir = filepath.Join(homeDir, ".config", "mcp_mesh")
		} else {
			return "./cli_config.json"
		}
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "./cli_config.json"
	}

	return filepath.Join(configDir, "cli_config.json")
}

// SaveConfig writes the configuration atomically (temp file + rename).
func SaveConfig(config *CLIConfig) error {
	config.mu.Lock()
	defer config.mu.Unlock()

	configPath := getConfigFilePath()
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	config.Version = ConfigVersion
	config.LastModified = time.Now()

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	tempPath := configPath + ".tmp"
	if err := ioutil.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary config file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save config file %s: %w", configPath, err)
	}

	return nil
}

// ApplyCliFlags overlays any flags the user explicitly set onto the configuration.
func ApplyCliFlags(config *CLIConfig, cmd *cobra.Command) {
	config.mu.Lock()
	defer config.mu.Unlock()

	if cmd.Flags().Changed("registry-host") {
		if val, err := cmd.Flags().GetString("registry-host"); err == nil {
			config.RegistryHost = val
		}
	}
	if cmd.Flags().Changed("registry-port") {
		if val, err := cmd.Flags().GetInt("registry-port"); err == nil {
			config.RegistryPort = val
		}
	}
	if cmd.Flags().Changed("log-level") {
		if val, err := cmd.Flags().GetString("log-level"); err == nil {
			config.LogLevel = strings.ToUpper(val)
		}
	}
	if cmd.Flags().Changed("timeout") {
		if val, err := cmd.Flags().GetInt("timeout"); err == nil {
			config.RequestTimeout = val
		}
	}

	config.LastModified = time.Now()
}

// Validate ensures configuration values are usable.
func (c *CLIConfig) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.RegistryPort < 1 || c.RegistryPort > 65535 {
		return fmt.Errorf("invalid registry port: %d (must be 1-65535)", c.RegistryPort)
	}
	if strings.TrimSpace(c.RegistryHost) == "" {
		return fmt.Errorf("registry host cannot be empty")
	}

	validLogLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}
	if !validLogLevels[strings.ToUpper(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s (must be DEBUG, INFO, WARNING, ERROR, or CRITICAL)", c.LogLevel)
	}
	if c.RequestTimeout < 1 {
		return fmt.Errorf("request timeout must be positive: %d", c.RequestTimeout)
	}

	return nil
}

// GetRegistryURL returns the fully-formed base URL for the configured registry.
func (c *CLIConfig) GetRegistryURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("http://%s:%d", c.RegistryHost, c.RegistryPort)
}

// Global configuration instance, lazily loaded.
var globalConfig *CLIConfig
var configMutex sync.Mutex

// GetCLIConfig returns the process-wide CLI configuration, loading it on first use.
func GetCLIConfig() *CLIConfig {
	configMutex.Lock()
	defer configMutex.Unlock()

	if globalConfig == nil {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			globalConfig = DefaultConfig()
		}
	}

	return globalConfig
}

// Load reloads configuration values in place (used on SIGHUP).
func (c *CLIConfig) Load() error {
	newConfig, err := LoadConfig()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.RegistryHost = newConfig.RegistryHost
	c.RegistryPort = newConfig.RegistryPort
	c.LogLevel = newConfig.LogLevel
	c.RequestTimeout = newConfig.RequestTimeout
	c.Version = newConfig.Version
	c.LastModified = newConfig.LastModified

	return nil
}
