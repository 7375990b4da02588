package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [agent-id]",
		Short: "Show detailed status of registered agents",
		Long: `Show detailed status information for mesh agents.

When called without arguments, shows wiring details for all healthy agents.
When called with an agent ID (or unambiguous prefix), shows details for that
specific agent.

Examples:
  meshctl status                                  # Show all healthy agents' wiring
  meshctl status hello-world-5395c5e4             # Show details for specific agent
  meshctl status --json                           # Output in JSON format
  meshctl status --registry-url http://remote:8000 # Connect to remote registry`,
		RunE: runStatusCommand,
	}

	cmd.Flags().Bool("verbose", false, "Show detailed status information")
	cmd.Flags().Bool("json", false, "Output status in JSON format")

	cmd.Flags().String("registry-url", "", "Registry URL (overrides host/port)")
	cmd.Flags().String("registry-host", "", "Registry host (default: localhost)")
	cmd.Flags().Int("registry-port", 0, "Registry port (default: 8000)")
	cmd.Flags().String("registry-scheme", "http", "Registry URL scheme (http/https)")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")

	return cmd
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	registryURL, _ := cmd.Flags().GetString("registry-url")
	registryHost, _ := cmd.Flags().GetString("registry-host")
	registryPort, _ := cmd.Flags().GetInt("registry-port")
	registryScheme, _ := cmd.Flags().GetString("registry-scheme")
	insecure, _ := cmd.Flags().GetBool("insecure")

	configureHTTPClientWithTLS(10, insecure)
	finalRegistryURL := determineRegistryURL(config, registryURL, registryHost, registryPort, registryScheme)

	agents, err := fetchAgents(finalRegistryURL)
	if err != nil {
		return fmt.Errorf("failed to reach registry at %s: %w", finalRegistryURL, err)
	}

	if len(args) > 0 {
		matchResult := ResolveAgentByPrefix(agents, args[0], false)
		if err := matchResult.FormattedError(); err != nil {
			return err
		}
		return printAgentStatus(*matchResult.Agent, jsonOutput, verbose)
	}

	var healthy []AgentView
	for _, a := range agents {
		if a.Status == "healthy" {
			healthy = append(healthy, a)
		}
	}

	if jsonOutput {
		data, err := json.MarshalIndent(healthy, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(healthy) == 0 {
		fmt.Println("No healthy agents found")
		return nil
	}

	fmt.Printf("Found %d healthy agent(s):\n\n", len(healthy))
	for i, a := range healthy {
		if i > 0 {
			fmt.Printf("\n%s\n\n", strings.Repeat("=", 80))
		}
		if err := printAgentStatus(a, false, verbose); err != nil {
			return err
		}
	}

	return nil
}

func printAgentStatus(agent AgentView, jsonOutput, verbose bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(agent, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	symbol := getStatusSymbol(agent.Status)
	fmt.Printf("%s %s (%s)\n", symbol, agent.Name, agent.AgentID)
	fmt.Printf("  Status:    %s\n", agent.Status)
	fmt.Printf("  Endpoint:  %s\n", agent.Endpoint)
	if agent.Namespace != "" {
		fmt.Printf("  Namespace: %s\n", agent.Namespace)
	}
	if agent.Runtime != "" {
		fmt.Printf("  Runtime:   %s\n", agent.Runtime)
	}
	fmt.Printf("  Tools:     %s\n", strings.Join(agent.Tools, ", "))

	if verbose {
		fmt.Printf("  Updated:   %s ago\n", formatDuration(time.Since(agent.UpdatedAt)))
	}

	return nil
}

func getStatusSymbol(status string) string {
	switch status {
	case "healthy":
		return "✓"
	case "unhealthy":
		return "✗"
	default:
		return "?"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
