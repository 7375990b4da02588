package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mcp-mesh/src/core/cli"
)

// version is injected at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "meshctl",
	Short: "MCP Mesh - Framework for building MCP agents",
	Long: `MCP Mesh - Framework for building MCP agents with automatic service discovery and dependency injection.

Agents discover each other through the registry and inject dependencies automatically -
no central orchestrator or manual wiring needed. meshctl is the operator's window into
a running mesh: list what's registered, call a tool directly, check an agent's status,
and inspect the tracing contract agents use to correlate calls.`,
}

func main() {
	rootCmd.Version = version

	rootCmd.AddCommand(cli.NewListCommand())
	rootCmd.AddCommand(cli.NewCallCommand())
	rootCmd.AddCommand(cli.NewStatusCommand())
	rootCmd.AddCommand(cli.NewTraceCommand())
	rootCmd.AddCommand(cli.NewInitCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
