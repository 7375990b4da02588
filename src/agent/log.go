package agent

import "mcp-mesh/src/core/logger"

// Log is the process-wide agent logger, sharing the same formatted-output
// Logger the registry uses so both halves of the mesh log identically. It
// starts at INFO and is replaced once the Processor loads its Config.
var Log = logger.New(&Config{LogLevel: "INFO"})

// SetLogger installs a Config-backed logger, replacing the INFO-only
// default installed at package init.
func SetLogger(cfg *Config) {
	Log = logger.New(cfg)
}
