// Package database wraps database/sql with the schema and pooling settings
// the registry needs, and picks a driver (sqlite3 for local dev, postgres for
// production) from the DATABASE_URL scheme.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration.
type Config struct {
	DatabaseURL        string `env:"DATABASE_URL" envDefault:"mcp_mesh_registry.db"`
	ConnectionTimeout  int    `env:"DB_CONNECTION_TIMEOUT" envDefault:"30"`
	BusyTimeout        int    `env:"DB_BUSY_TIMEOUT" envDefault:"5000"`
	JournalMode        string `env:"DB_JOURNAL_MODE" envDefault:"WAL"`
	Synchronous        string `env:"DB_SYNCHRONOUS" envDefault:"NORMAL"`
	CacheSize          int    `env:"DB_CACHE_SIZE" envDefault:"10000"`
	EnableForeignKeys  bool   `env:"DB_ENABLE_FOREIGN_KEYS" envDefault:"true"`
	MaxOpenConnections int    `env:"DB_MAX_OPEN_CONNECTIONS" envDefault:"25"`
	MaxIdleConnections int    `env:"DB_MAX_IDLE_CONNECTIONS" envDefault:"5"`
	ConnMaxLifetime    int    `env:"DB_CONN_MAX_LIFETIME" envDefault:"300"` // seconds
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL:        "mcp_mesh_registry.db",
		ConnectionTimeout:  30,
		BusyTimeout:        5000,
		JournalMode:        "WAL",
		Synchronous:        "NORMAL",
		CacheSize:          10000,
		EnableForeignKeys:  true,
		MaxOpenConnections: 25,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    300,
	}
}

// Database wraps sql.DB with the registry's schema and driver selection.
type Database struct {
	*sql.DB
	config   *Config
	IsSQLite bool
}

// Initialize opens the connection, configures pooling/PRAGMAs, and applies
// the schema. Schema changes are additive only (see checkSchemaVersion).
func Initialize(config *Config) (*Database, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var driverName, dataSourceName string
	isSQLite := true

	if strings.HasPrefix(config.DatabaseURL, "postgres://") || strings.HasPrefix(config.DatabaseURL, "postgresql://") {
		driverName = "postgres"
		dataSourceName = config.DatabaseURL
		isSQLite = false
	} else {
		driverName = "sqlite3"
		dataSourceName = config.DatabaseURL
	}

	sqlDB, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(config.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)

	database := &Database{DB: sqlDB, config: config, IsSQLite: isSQLite}

	if isSQLite {
		if config.EnableForeignKeys {
			database.Exec("PRAGMA foreign_keys = ON")
		}
		database.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", config.BusyTimeout))
		database.Exec(fmt.Sprintf("PRAGMA journal_mode = %s", config.JournalMode))
		database.Exec(fmt.Sprintf("PRAGMA synchronous = %s", config.Synchronous))
		database.Exec(fmt.Sprintf("PRAGMA cache_size = -%d", config.CacheSize))
		// SQLite serializes writers; a single open connection avoids
		// "database is locked" errors under concurrent handlers while still
		// letting readers proceed via WAL mode.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := database.initializeSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// autoIncrement returns the driver-specific primary key clause.
func (db *Database) autoIncrement() string {
	if db.IsSQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

func (db *Database) timestampType() string {
	if db.IsSQLite {
		return "TIMESTAMP"
	}
	return "TIMESTAMPTZ"
}

// initializeSchema creates all tables and indexes for the data model in
// spec §3: agents, tools (one tool belongs to exactly one agent, cascading
// delete), dependency_resolutions (one row per consumer dep slot, replaced
// wholesale on every full POST), and registry_events (append-only, unique on
// (agent_id, event_type, timestamp) to idempotently absorb duplicates).
func (db *Database) initializeSchema() error {
	ts := db.timestampType()

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at ` + ts + ` DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			namespace TEXT NOT NULL DEFAULT 'default',
			version TEXT,
			endpoint TEXT,
			runtime TEXT,
			status TEXT NOT NULL DEFAULT 'healthy',
			created_at ` + ts + ` DEFAULT CURRENT_TIMESTAMP,
			updated_at ` + ts + ` DEFAULT CURRENT_TIMESTAMP,
			last_full_refresh ` + ts + ` DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tools (
			id ` + db.autoIncrement() + `,
			agent_id TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
			function_name TEXT NOT NULL,
			capability TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			version TEXT NOT NULL DEFAULT '1.0.0',
			description TEXT,
			input_schema TEXT,
			dependencies TEXT NOT NULL DEFAULT '[]',
			UNIQUE(agent_id, function_name)
		)`,

		`CREATE TABLE IF NOT EXISTS dependency_resolutions (
			id ` + db.autoIncrement() + `,
			consumer_agent_id TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
			consumer_function_name TEXT NOT NULL,
			dep_index INTEGER NOT NULL DEFAULT 0,
			capability_required TEXT NOT NULL,
			tags_required TEXT NOT NULL DEFAULT '[]',
			version_required TEXT,
			namespace_required TEXT NOT NULL DEFAULT 'default',
			provider_agent_id TEXT,
			provider_function_name TEXT,
			endpoint TEXT,
			status TEXT NOT NULL DEFAULT 'unresolved',
			resolved_at ` + ts + `,
			UNIQUE(consumer_agent_id, consumer_function_name, dep_index)
		)`,

		`CREATE TABLE IF NOT EXISTS registry_events (
			id ` + db.autoIncrement() + `,
			agent_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp ` + ts + ` DEFAULT CURRENT_TIMESTAMP,
			data TEXT NOT NULL DEFAULT '{}',
			UNIQUE(agent_id, event_type, timestamp)
		)`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_agents_namespace ON agents(namespace)",
		"CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status)",
		"CREATE INDEX IF NOT EXISTS idx_agents_updated_at ON agents(updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_tools_capability ON tools(capability)",
		"CREATE INDEX IF NOT EXISTS idx_tools_agent ON tools(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_resolutions_consumer ON dependency_resolutions(consumer_agent_id, consumer_function_name)",
		"CREATE INDEX IF NOT EXISTS idx_resolutions_provider ON dependency_resolutions(provider_agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_agent ON registry_events(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_timestamp ON registry_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_events_type ON registry_events(event_type)",
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			log.Printf("Warning: failed to create index: %s - %v", indexSQL, err)
		}
	}

	return db.checkSchemaVersion()
}

// checkSchemaVersion records the current schema version. Future schema
// changes must be additive (new nullable columns, new event/runtime enum
// values) so that older readers keep working per spec §6.
func (db *Database) checkSchemaVersion() error {
	const currentSchemaVersion = 1

	var currentVersion int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion < currentSchemaVersion {
		_, err := db.Exec("INSERT INTO schema_version (version, applied_at) VALUES ($1, $2)",
			currentSchemaVersion, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (db *Database) Close() error {
	return db.DB.Close()
}

// Rebind rewrites "?" placeholders to "$N" for postgres; sqlite accepts "?"
// directly. All store queries are written with "?" and passed through this.
func (db *Database) Rebind(query string) string {
	if db.IsSQLite {
		return query
	}
	n := 0
	var b strings.Builder
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetStats returns basic registry statistics for operational visibility.
func (db *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalAgents int64
	if err := db.QueryRow("SELECT COUNT(*) FROM agents").Scan(&totalAgents); err != nil {
		return nil, fmt.Errorf("failed to get total agent count: %w", err)
	}
	stats["total_agents"] = totalAgents

	var uniqueCapabilities int64
	if err := db.QueryRow("SELECT COUNT(DISTINCT capability) FROM tools").Scan(&uniqueCapabilities); err != nil {
		return nil, fmt.Errorf("failed to get unique capability count: %w", err)
	}
	stats["unique_capabilities"] = uniqueCapabilities

	oneHourAgo := time.Now().UTC().Add(-time.Hour)
	var recentEvents int64
	if err := db.QueryRow(db.Rebind("SELECT COUNT(*) FROM registry_events WHERE timestamp > ?"), oneHourAgo).Scan(&recentEvents); err != nil {
		return nil, fmt.Errorf("failed to get recent event count: %w", err)
	}
	stats["recent_events_last_hour"] = recentEvents

	return stats, nil
}
