package registry

import "errors"

// Registry-side errors from the error taxonomy in spec §7.
var (
	// ErrAgentNotFound is returned when a heartbeat, lookup, or delete
	// targets an agent_id the registry has no row for — either it never
	// registered or was already evicted by the liveness monitor.
	ErrAgentNotFound = errors.New("agent not found")
)
