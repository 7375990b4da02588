package cli

import (
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// IsPortAvailable checks if a port is available for use
func IsPortAvailable(host string, port int) bool {
	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", address, 1*time.Second)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

// WaitForRegistry polls the registry's /health endpoint until it responds or the timeout elapses.
func WaitForRegistry(registryURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	healthURL := registryURL + "/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(healthURL)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("registry did not become available within %v", timeout)
}

// IsRegistryRunning checks if the registry is currently reachable.
func IsRegistryRunning(registryURL string) bool {
	healthURL := registryURL + "/health"
	resp, err := http.Get(healthURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// FindAvailablePort finds an available port starting from the given port
func FindAvailablePort(host string, startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		if IsPortAvailable(host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found starting from %d", startPort)
}

// AbsolutePath converts a relative path to an absolute path
func AbsolutePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(path)
}

// ValidateLogLevel checks if a log level is valid
func ValidateLogLevel(level string) bool {
	validLevels := []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}
	for _, valid := range validLevels {
		if level == valid {
			return true
		}
	}
	return false
}

// ParsePort parses a port string and validates it
func ParsePort(portStr string) (int, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return port, nil
}

// AgentMatchResult represents the result of prefix matching for agent resolution
type AgentMatchResult struct {
	Agent   *AgentView  // Matched agent (if unique)
	Matches []AgentView // All matching agents (for disambiguation)
	Error   error       // Error if no match
	IsExact bool        // True if exact match (not prefix)
}

// FormattedError returns a user-friendly error message including matching options
// if there are multiple matches. Returns nil if there's no error.
func (r *AgentMatchResult) FormattedError() error {
	if r.Error == nil {
		return nil
	}
	if len(r.Matches) > 1 {
		return fmt.Errorf("%s%s", r.Error.Error(), FormatAgentMatchOptions(r.Matches))
	}
	return r.Error
}

// ResolveAgentByPrefix finds agents matching the given name or ID prefix.
// It first checks for exact matches (Name or AgentID), then falls back to
// case-insensitive prefix matching.
func ResolveAgentByPrefix(agents []AgentView, prefix string, healthyOnly bool) *AgentMatchResult {
	result := &AgentMatchResult{}

	var candidateAgents []AgentView
	for _, agent := range agents {
		if healthyOnly && strings.ToLower(agent.Status) != "healthy" {
			continue
		}
		candidateAgents = append(candidateAgents, agent)
	}

	for i := range candidateAgents {
		agent := candidateAgents[i]
		if agent.Name == prefix || agent.AgentID == prefix {
			result.Agent = &candidateAgents[i]
			result.IsExact = true
			return result
		}
	}

	var matches []AgentView
	prefixLower := strings.ToLower(prefix)

	for _, agent := range candidateAgents {
		nameLower := strings.ToLower(agent.Name)
		idLower := strings.ToLower(agent.AgentID)

		if strings.HasPrefix(nameLower, prefixLower) ||
			strings.HasPrefix(idLower, prefixLower) {
			matches = append(matches, agent)
		}
	}

	switch len(matches) {
	case 0:
		if healthyOnly {
			result.Error = fmt.Errorf("no healthy agent found matching '%s'", prefix)
		} else {
			result.Error = fmt.Errorf("no agent found matching '%s'", prefix)
		}
	case 1:
		result.Agent = &matches[0]
		result.IsExact = false
		result.Matches = matches
	default:
		result.Matches = matches
		result.Error = fmt.Errorf("multiple agents match '%s'", prefix)
	}

	return result
}

// FormatAgentMatchOptions formats multiple matching agents for display to the user.
func FormatAgentMatchOptions(matches []AgentView) string {
	var sb strings.Builder
	sb.WriteString("\nMatching agents:\n")

	for _, agent := range matches {
		sb.WriteString(fmt.Sprintf("  - %s (ID: %s, Status: %s)\n",
			agent.Name, agent.AgentID, agent.Status))
	}

	sb.WriteString("\nPlease specify a more precise agent name or ID.")
	return sb.String()
}
