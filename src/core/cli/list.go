package cli

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Color constants for table output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Long: `List agents currently registered with the mesh registry in a
docker-compose-style table.

By default, only healthy agents are shown. Use --all to include agents the
registry hasn't evicted yet but whose heartbeat has gone stale.

Examples:
  meshctl list                                    # Healthy agents only
  meshctl list --all                              # Include unhealthy agents
  meshctl list --json                             # JSON output
  meshctl list --filter weather                   # Filter by name substring
  meshctl list --registry-url http://remote:8000  # Remote registry`,
		RunE: runListCommand,
	}

	cmd.Flags().String("filter", "", "Filter by name substring")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.Flags().Bool("wide", false, "Also show the endpoint column")
	cmd.Flags().Bool("all", false, "Include unhealthy agents")

	cmd.Flags().String("registry-url", "", "Registry URL (overrides host/port)")
	cmd.Flags().String("registry-host", "", "Registry host (default: localhost)")
	cmd.Flags().Int("registry-port", 0, "Registry port (default: 8000)")
	cmd.Flags().String("registry-scheme", "http", "Registry URL scheme (http/https)")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")
	cmd.Flags().Int("timeout", 10, "Connection timeout in seconds")

	return cmd
}

// AgentView is the CLI-side projection of registry.AgentSummary, used for
// both table and JSON rendering.
type AgentView struct {
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace,omitempty"`
	Version   string    `json:"version,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Runtime   string    `json:"runtime,omitempty"`
	Status    string    `json:"status"`
	Tools     []string  `json:"tools"`
	UpdatedAt time.Time `json:"updated_at"`
}

func runListCommand(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	filterPattern, _ := cmd.Flags().GetString("filter")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	wide, _ := cmd.Flags().GetBool("wide")
	showAll, _ := cmd.Flags().GetBool("all")

	registryURL, _ := cmd.Flags().GetString("registry-url")
	registryHost, _ := cmd.Flags().GetString("registry-host")
	registryPort, _ := cmd.Flags().GetInt("registry-port")
	registryScheme, _ := cmd.Flags().GetString("registry-scheme")
	insecure, _ := cmd.Flags().GetBool("insecure")
	timeout, _ := cmd.Flags().GetInt("timeout")

	finalRegistryURL := determineRegistryURL(config, registryURL, registryHost, registryPort, registryScheme)
	configureHTTPClientWithTLS(timeout, insecure)

	agents, err := fetchAgents(finalRegistryURL)
	if err != nil {
		return fmt.Errorf("failed to reach registry at %s: %w", finalRegistryURL, err)
	}

	if filterPattern != "" {
		agents = filterAgentViews(agents, filterPattern)
	}
	if !showAll {
		agents = filterHealthyAgentViews(agents)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	if jsonOutput {
		return outputJSON(agents)
	}
	printAgentTable(agents, wide)
	return nil
}

// fetchAgents retrieves the agent list from the registry's /agents endpoint.
func fetchAgents(registryURL string) ([]AgentView, error) {
	resp, err := registryHTTPClient.Get(registryURL + "/agents")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registry returned status %d: %s", resp.StatusCode, string(body))
	}

	var listResp struct {
		Agents []AgentView `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}
	return listResp.Agents, nil
}

func filterAgentViews(agents []AgentView, pattern string) []AgentView {
	pattern = strings.ToLower(pattern)
	var out []AgentView
	for _, a := range agents {
		if strings.Contains(strings.ToLower(a.Name), pattern) || strings.Contains(strings.ToLower(a.AgentID), pattern) {
			out = append(out, a)
		}
	}
	return out
}

func filterHealthyAgentViews(agents []AgentView) []AgentView {
	var out []AgentView
	for _, a := range agents {
		if a.Status == "healthy" {
			out = append(out, a)
		}
	}
	return out
}

func outputJSON(agents []AgentView) error {
	if agents == nil {
		agents = []AgentView{}
	}
	data, err := json.MarshalIndent(map[string]interface{}{"agents": agents, "count": len(agents)}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printAgentTable(agents []AgentView, wide bool) {
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return
	}

	nameWidth, statusWidth, runtimeWidth := 20, 10, 10
	for _, a := range agents {
		if len(a.Name) > nameWidth {
			nameWidth = len(a.Name)
		}
	}

	if wide {
		fmt.Printf("%-*s  %-*s  %-*s  %-8s  %s\n", nameWidth, "NAME", statusWidth, "STATUS", runtimeWidth, "RUNTIME", "TOOLS", "ENDPOINT")
	} else {
		fmt.Printf("%-*s  %-*s  %-*s  %s\n", nameWidth, "NAME", statusWidth, "STATUS", runtimeWidth, "RUNTIME", "TOOLS")
	}

	for _, a := range agents {
		statusDisplay := getStatusColor(a.Status) + a.Status + colorReset
		toolCount := fmt.Sprintf("%d", len(a.Tools))
		if wide {
			fmt.Printf("%-*s  %-*s  %-*s  %-8s  %s\n", nameWidth, a.Name, statusWidth, statusDisplay, runtimeWidth, a.Runtime, toolCount, a.Endpoint)
		} else {
			fmt.Printf("%-*s  %-*s  %-*s  %s\n", nameWidth, a.Name, statusWidth, statusDisplay, runtimeWidth, a.Runtime, toolCount)
		}
	}
}

func getStatusColor(status string) string {
	switch status {
	case "healthy":
		return colorGreen
	case "unhealthy":
		return colorRed
	default:
		return colorYellow
	}
}

// determineRegistryURL resolves the final registry URL from flags and config, in precedence order.
func determineRegistryURL(config *CLIConfig, registryURL, registryHost string, registryPort int, registryScheme string) string {
	if registryURL != "" {
		return strings.TrimSuffix(registryURL, "/")
	}

	host := config.RegistryHost
	if registryHost != "" {
		host = registryHost
	}
	port := config.RegistryPort
	if registryPort != 0 {
		port = registryPort
	}
	scheme := registryScheme
	if scheme == "" {
		scheme = "http"
	}

	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

var registryHTTPClient = &http.Client{Timeout: 10 * time.Second}

// configureHTTPClientWithTLS rebuilds the shared registry HTTP client with the given timeout and TLS policy.
func configureHTTPClientWithTLS(timeoutSeconds int, insecure bool) {
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	registryHTTPClient = &http.Client{
		Timeout:   time.Duration(timeoutSeconds) * time.Second,
		Transport: transport,
	}
}
