package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mcp-mesh/src/core/database"
)

// Store is the data-model realization of spec §3 on top of database/sql.
// It owns the agents/tools/dependency_resolutions/registry_events tables and
// performs no resolution logic itself — that lives in resolver.go.
type Store struct {
	db *database.Database
}

// NewStore wraps an initialized Database.
func NewStore(db *database.Database) *Store {
	return &Store{db: db}
}

// AgentRow is the agents table row.
type AgentRow struct {
	AgentID         string
	Name            string
	Namespace       string
	Version         string
	Endpoint        string
	Runtime         string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastFullRefresh time.Time
}

// ToolRow is the tools table row.
type ToolRow struct {
	ID           int64
	AgentID      string
	FunctionName string
	Capability   string
	Tags         []string
	Version      string
	Description  string
	InputSchema  json.RawMessage
	Dependencies []DependencySpec
}

func (s *Store) rebind(q string) string { return s.db.Rebind(q) }

// UpsertAgent inserts or updates an agent row. refreshTouched controls
// whether last_full_refresh advances. RegisterFull uses the true path
// directly; the HEAD liveness ping goes through TouchHeartbeat instead, and
// nothing in this package calls UpsertAgent.
func (s *Store) UpsertAgent(ctx context.Context, tx *sql.Tx, req AgentRequest, refreshTouched bool) error {
	return s.upsertAgentAt(ctx, tx, req, refreshTouched, time.Now().UTC())
}

func (s *Store) upsertAgentAt(ctx context.Context, tx *sql.Tx, req AgentRequest, refreshTouched bool, now time.Time) error {
	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}

	var q string
	if refreshTouched {
		q = s.rebind(`INSERT INTO agents (agent_id, name, namespace, version, endpoint, runtime, status, created_at, updated_at, last_full_refresh)
			VALUES (?, ?, ?, ?, ?, ?, 'healthy', ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				name = excluded.name, namespace = excluded.namespace, version = excluded.version,
				endpoint = excluded.endpoint, runtime = excluded.runtime, status = 'healthy',
				updated_at = excluded.updated_at, last_full_refresh = excluded.last_full_refresh`)
		_, err := tx.ExecContext(ctx, q, req.AgentID, req.Name, namespace, req.Version, req.Endpoint, req.Runtime, now, now, now)
		return err
	}

	q = s.rebind(`INSERT INTO agents (agent_id, name, namespace, version, endpoint, runtime, status, created_at, updated_at, last_full_refresh)
		VALUES (?, ?, ?, ?, ?, ?, 'healthy', ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET status = 'healthy', updated_at = excluded.updated_at`)
	_, err := tx.ExecContext(ctx, q, req.AgentID, req.Name, namespace, req.Version, req.Endpoint, req.Runtime, now, now, now)
	return err
}

// ReplaceTools deletes an agent's existing tool rows and inserts the ones
// from the current registration/heartbeat payload. Full replacement keeps
// the set of advertised capabilities in lockstep with the latest snapshot
// (spec §4.2: the full POST is authoritative, not incremental).
func (s *Store) ReplaceTools(ctx context.Context, tx *sql.Tx, agentID string, tools []ToolRegistration) error {
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM tools WHERE agent_id = ?"), agentID); err != nil {
		return fmt.Errorf("failed to clear tools: %w", err)
	}

	insert := s.rebind(`INSERT INTO tools (agent_id, function_name, capability, tags, version, description, input_schema, dependencies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, t := range tools {
		tagsJSON, _ := json.Marshal(t.Tags)
		depsJSON, _ := json.Marshal(t.Dependencies)
		version := t.Version
		if version == "" {
			version = "1.0.0"
		}
		var inputSchema interface{}
		if len(t.InputSchema) > 0 {
			inputSchema = string(t.InputSchema)
		}
		if _, err := tx.ExecContext(ctx, insert, agentID, t.FunctionName, t.Capability, string(tagsJSON), version, t.Description, inputSchema, string(depsJSON)); err != nil {
			return fmt.Errorf("failed to insert tool %s: %w", t.FunctionName, err)
		}
	}
	return nil
}

// GetAgent fetches a single agent row.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*AgentRow, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT agent_id, name, namespace, version, endpoint, runtime, status, created_at, updated_at, last_full_refresh
		FROM agents WHERE agent_id = ?`), agentID)

	var a AgentRow
	if err := row.Scan(&a.AgentID, &a.Name, &a.Namespace, &a.Version, &a.Endpoint, &a.Runtime, &a.Status, &a.CreatedAt, &a.UpdatedAt, &a.LastFullRefresh); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListAgents returns agents matching the optional filters, joined with
// their tool capabilities.
func (s *Store) ListAgents(ctx context.Context, params AgentQueryParams) ([]AgentSummary, error) {
	query := `SELECT agent_id, name, namespace, version, endpoint, runtime, status, updated_at FROM agents WHERE 1=1`
	var args []interface{}

	if params.Namespace != "" {
		query += " AND namespace = ?"
		args = append(args, params.Namespace)
	}
	if params.Status != "" {
		query += " AND status = ?"
		args = append(args, params.Status)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []AgentSummary
	for rows.Next() {
		var a AgentSummary
		if err := rows.Scan(&a.AgentID, &a.Name, &a.Namespace, &a.Version, &a.Endpoint, &a.Runtime, &a.Status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		tools, err := s.listToolCapabilities(ctx, a.AgentID)
		if err != nil {
			return nil, err
		}
		a.Tools = tools
		if params.Capability != "" && !containsTag(tools, params.Capability) {
			continue
		}
		summaries = append(summaries, a)
	}
	return summaries, rows.Err()
}

func (s *Store) listToolCapabilities(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT capability FROM tools WHERE agent_id = ?"), agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// ToolsByAgent returns the full tool rows for one agent, including parsed
// tags/dependencies, used by the resolver to know what a consumer needs.
func (s *Store) ToolsByAgent(ctx context.Context, agentID string) ([]ToolRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, agent_id, function_name, capability, tags, version, description, input_schema, dependencies
		FROM tools WHERE agent_id = ?`), agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanToolRows(rows)
}

// CandidatesForCapability returns every tool (across all agents) advertising
// the given capability, joined with its owning agent's endpoint/status, for
// the resolver to score against a DependencySpec.
func (s *Store) CandidatesForCapability(ctx context.Context, capability, namespace string) ([]Candidate, error) {
	query := `SELECT t.agent_id, t.function_name, t.capability, t.version, t.tags, a.endpoint
		FROM tools t JOIN agents a ON a.agent_id = t.agent_id
		WHERE t.capability = ? AND a.status = 'healthy'`
	args := []interface{}{capability}
	if namespace != "" {
		query += " AND a.namespace = ?"
		args = append(args, namespace)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var tagsJSON, endpoint string
		if err := rows.Scan(&c.AgentID, &c.FunctionName, &c.Capability, &c.Version, &tagsJSON, &endpoint); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
		c.HttpHost, c.HttpPort = splitHostPort(endpoint)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// UpsertResolution records the resolver's decision for one consumer
// dependency slot (spec §3 Resolution). It's a snapshot, fully replaced
// every time the resolver re-runs for that consumer.
func (s *Store) UpsertResolution(ctx context.Context, tx *sql.Tx, consumerAgentID string, spec DependencySpec, functionName string, depIndex int, result *Candidate) error {
	status := "unresolved"
	var providerAgentID, providerFunction, endpoint interface{}
	var resolvedAt interface{}
	if result != nil {
		status = "resolved"
		providerAgentID = result.AgentID
		providerFunction = result.FunctionName
		endpoint = fmt.Sprintf("%s:%d", result.HttpHost, result.HttpPort)
		resolvedAt = time.Now().UTC()
	}

	tagsJSON, _ := json.Marshal(spec.Tags)
	namespace := spec.Namespace
	if namespace == "" {
		namespace = "default"
	}

	q := s.rebind(`INSERT INTO dependency_resolutions
		(consumer_agent_id, consumer_function_name, dep_index, capability_required, tags_required, version_required, namespace_required, provider_agent_id, provider_function_name, endpoint, status, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(consumer_agent_id, consumer_function_name, dep_index) DO UPDATE SET
			capability_required = excluded.capability_required, tags_required = excluded.tags_required,
			version_required = excluded.version_required, namespace_required = excluded.namespace_required,
			provider_agent_id = excluded.provider_agent_id, provider_function_name = excluded.provider_function_name,
			endpoint = excluded.endpoint, status = excluded.status, resolved_at = excluded.resolved_at`)

	_, err := tx.ExecContext(ctx, q, consumerAgentID, functionName, depIndex, spec.Capability, string(tagsJSON), spec.Version, namespace, providerAgentID, providerFunction, endpoint, status, resolvedAt)
	return err
}

// ResolutionsForAgent returns the current resolution snapshot for every
// dependency slot a consumer agent declared.
func (s *Store) ResolutionsForAgent(ctx context.Context, agentID string) ([]ResolvedDependency, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT consumer_function_name, dep_index, capability_required, status,
		COALESCE(provider_agent_id, ''), COALESCE(provider_function_name, ''), COALESCE(endpoint, '')
		FROM dependency_resolutions WHERE consumer_agent_id = ? ORDER BY consumer_function_name, dep_index`), agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResolvedDependency
	for rows.Next() {
		var r ResolvedDependency
		if err := rows.Scan(&r.FunctionName, &r.DepIndex, &r.Capability, &r.Status, &r.ProviderAgentID, &r.ProviderFunction, &r.Endpoint); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolutionsDependingOnCapability finds every consumer whose unresolved (or
// possibly-stale) resolution slot needs the given capability, so the
// resolver can be re-run for them after a provider registers/changes.
func (s *Store) ResolutionsDependingOnCapability(ctx context.Context, capability string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT DISTINCT consumer_agent_id FROM dependency_resolutions WHERE capability_required = ?`), capability)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertEvent appends an append-only registry event (spec §3 Event). The
// (agent_id, event_type, timestamp) unique constraint absorbs duplicate
// deliveries idempotently; a conflict here is not an error.
func (s *Store) InsertEvent(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, agentID, eventType string, data map[string]interface{}) error {
	return s.insertEventAt(ctx, execer, agentID, eventType, data, time.Now().UTC())
}

func (s *Store) insertEventAt(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, agentID, eventType string, data map[string]interface{}, ts time.Time) error {
	dataJSON, _ := json.Marshal(data)
	q := s.rebind(`INSERT INTO registry_events (agent_id, event_type, timestamp, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id, event_type, timestamp) DO NOTHING`)
	_, err := execer.ExecContext(ctx, q, agentID, eventType, ts, string(dataJSON))
	return err
}

// topologyEventTypes are the event types that can make HEAD report a
// topology change (spec §4.2 HEAD step 2). A routine heartbeat-driven full
// refresh that changed nothing records event_type = "heartbeat", which is
// deliberately excluded here (spec §8: "No event with event_type = heartbeat
// ever causes HEAD to return 202").
var topologyEventTypes = []string{"register", "unregister", "unhealthy", "update"}

// TopologyEventsSince returns the count of topology-relevant events recorded
// after the given time, used by the HEAD liveness check's "has anything
// relevant changed" decision.
func (s *Store) TopologyEventsSince(ctx context.Context, since time.Time) (int64, error) {
	query := s.rebind("SELECT COUNT(*) FROM registry_events WHERE timestamp > ? AND event_type IN (?, ?, ?, ?)")
	args := make([]interface{}, 0, 1+len(topologyEventTypes))
	args = append(args, since)
	for _, t := range topologyEventTypes {
		args = append(args, t)
	}
	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// StaleAgents returns agents not updated since the given threshold, for the
// liveness monitor.
func (s *Store) StaleAgents(ctx context.Context, threshold time.Time) ([]AgentRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT agent_id, name, namespace, version, endpoint, runtime, status, created_at, updated_at, last_full_refresh
		FROM agents WHERE updated_at < ? AND status != 'unhealthy'`), threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentRow
	for rows.Next() {
		var a AgentRow
		if err := rows.Scan(&a.AgentID, &a.Name, &a.Namespace, &a.Version, &a.Endpoint, &a.Runtime, &a.Status, &a.CreatedAt, &a.UpdatedAt, &a.LastFullRefresh); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkUnhealthy flips the status column, independent of eviction.
func (s *Store) MarkUnhealthy(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind("UPDATE agents SET status = 'unhealthy' WHERE agent_id = ?"), agentID)
	return err
}

// DeleteAgent evicts an agent and, by ON DELETE CASCADE, its tools and
// dependency resolutions (spec §4.3: unhealthy agents are evicted, not just
// flagged).
func (s *Store) DeleteAgent(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM agents WHERE agent_id = ?"), agentID)
	return err
}

// TouchHeartbeat advances updated_at without altering tools/resolutions, for
// the lightweight HEAD ping.
func (s *Store) TouchHeartbeat(ctx context.Context, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE agents SET updated_at = ?, status = 'healthy' WHERE agent_id = ?"), time.Now().UTC(), agentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RegisterFull upserts the agent, replaces its tool set, and appends the
// event the caller has classified (register/update/heartbeat) in a single
// transaction (spec §4.2: registration is atomic — a consumer never
// observes a partially-applied snapshot).
//
// The upsert's last_full_refresh and the event's timestamp are stamped
// with the exact same instant. Otherwise the event (inserted a moment
// after the upsert) would always read as "newer than my own
// last_full_refresh", and a POST immediately followed by its own HEAD
// would spuriously report a topology change (spec §8: "A POST immediately
// followed by HEAD returns 200").
func (s *Store) RegisterFull(ctx context.Context, req AgentRequest, eventType string) error {
	now := time.Now().UTC()
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.upsertAgentAt(ctx, tx, req, true, now); err != nil {
			return fmt.Errorf("failed to upsert agent: %w", err)
		}
		if err := s.ReplaceTools(ctx, tx, req.AgentID, req.Tools); err != nil {
			return fmt.Errorf("failed to replace tools: %w", err)
		}
		if err := s.insertEventAt(ctx, tx, req.AgentID, eventType, map[string]interface{}{
			"name":       req.Name,
			"namespace":  req.Namespace,
			"tool_count": len(req.Tools),
		}, now); err != nil {
			return fmt.Errorf("failed to record %s event: %w", eventType, err)
		}
		return nil
	})
}

// WithTx runs fn inside a transaction, committing on success.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanToolRows(rows *sql.Rows) ([]ToolRow, error) {
	var out []ToolRow
	for rows.Next() {
		var t ToolRow
		var tagsJSON, depsJSON string
		var inputSchema sql.NullString
		if err := rows.Scan(&t.ID, &t.AgentID, &t.FunctionName, &t.Capability, &tagsJSON, &t.Version, &t.Description, &inputSchema, &depsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
		_ = json.Unmarshal([]byte(depsJSON), &t.Dependencies)
		if inputSchema.Valid {
			t.InputSchema = json.RawMessage(inputSchema.String)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func splitHostPort(endpoint string) (string, int) {
	host := endpoint
	port := 0
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == ':' {
			host = endpoint[:i]
			fmt.Sscanf(endpoint[i+1:], "%d", &port)
			break
		}
	}
	return host, port
}
