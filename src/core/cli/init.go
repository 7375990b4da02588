package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// AgentStarterConfig is the on-disk shape src/agent/watcher.go parses
// (src/agent/config.go reads environment variables only).
// This intentionally drops the teacher scaffold's template/provider/
// tool-filter fields — there is no project-template generator here, only
// the config file the agent runtime actually reads.
type AgentStarterConfig struct {
	Name        string   `yaml:"name"`
	Namespace   string   `yaml:"namespace"`
	Runtime     string   `yaml:"runtime"`
	RegistryURL string   `yaml:"registry_url"`
	Tags        []string `yaml:"tags,omitempty"`
}

// NewInitCommand creates the init command
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Interactively write a starter agent config file",
		Long: `Prompt for an agent's name, namespace, runtime, and registry URL,
then write a YAML config file in the shape the agent runtime's config
watcher parses.

Examples:
  meshctl init                     # Write ./mesh-agent.yaml
  meshctl init agent.yaml          # Write to a specific path`,
		RunE: runInitCommand,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func runInitCommand(cmd *cobra.Command, args []string) error {
	path := "mesh-agent.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	cfg := &AgentStarterConfig{}

	namePrompt := &survey.Input{Message: "Agent name (kebab-case, e.g., weather-agent):"}
	if err := survey.AskOne(namePrompt, &cfg.Name, survey.WithValidator(survey.Required)); err != nil {
		return fmt.Errorf("failed to get agent name: %w", err)
	}

	nsPrompt := &survey.Input{Message: "Namespace:", Default: "default"}
	if err := survey.AskOne(nsPrompt, &cfg.Namespace); err != nil {
		return fmt.Errorf("failed to get namespace: %w", err)
	}

	runtimeOption := ""
	runtimePrompt := &survey.Select{
		Message: "Runtime:",
		Options: []string{"go", "python", "typescript", "java"},
		Default: "go",
	}
	if err := survey.AskOne(runtimePrompt, &runtimeOption); err != nil {
		return fmt.Errorf("failed to get runtime: %w", err)
	}
	cfg.Runtime = runtimeOption

	urlPrompt := &survey.Input{Message: "Registry URL:", Default: "http://localhost:8000"}
	if err := survey.AskOne(urlPrompt, &cfg.RegistryURL); err != nil {
		return fmt.Errorf("failed to get registry URL: %w", err)
	}

	tagsStr := ""
	tagsPrompt := &survey.Input{Message: "Tags (comma-separated, optional):"}
	if err := survey.AskOne(tagsPrompt, &tagsStr); err != nil {
		return fmt.Errorf("failed to get tags: %w", err)
	}
	if tagsStr != "" {
		cfg.Tags = splitAndTrimTags(tagsStr)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

func splitAndTrimTags(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
