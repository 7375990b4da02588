package agent

import "fmt"

// TransportError wraps a network-layer failure (DNS, connect, timeout,
// TLS). Retryable; never clears the dependency cache (spec §7.1).
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports an HTTP response whose status is not the one the
// caller expected (any 4xx or 5xx included). Surfaced to the caller as-is;
// never retried (spec §7.2).
type ProtocolError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// ApplicationError wraps a well-formed JSON-RPC error response from the
// remote tool itself, as distinct from a transport or protocol fault.
type ApplicationError struct {
	Code    int
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("application error %d: %s", e.Code, e.Message)
}

// ResolutionError indicates a dependency slot has no provider. Callers
// observe this as a nil proxy in the injection slot, not as a returned
// error (spec §7.3) — this type exists for code paths that need to report
// the condition explicitly; nothing in this package returns it.
type ResolutionError struct {
	FunctionName string
	DepIndex     int
	Capability   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("dependency %d (%s) of %s is unresolved", e.DepIndex, e.Capability, e.FunctionName)
}
