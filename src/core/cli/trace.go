package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// TraceInfo mirrors the registry's /trace/info response: the correlation
// header and ID format agents must use, and whether OTLP export is active.
type TraceInfo struct {
	HeaderName   string `json:"header_name"`
	IDFormat     string `json:"id_format"`
	ExportActive bool   `json:"export_active"`
}

// NewTraceCommand creates the trace command
func NewTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show distributed tracing configuration",
		Long: `Report the correlation header and ID format the registry expects agents
to use for distributed tracing, and whether OTLP span export is active.

The registry itself only owns the header/ID contract; it does not store or
render full call trees. Feed the reported header into whatever OTLP backend
(Tempo, Jaeger, etc.) your deployment exports spans to in order to view a
call's full tree.

Examples:
  meshctl trace                                    # Show tracing config
  meshctl trace --json                             # Output as JSON
  meshctl trace --registry-url http://remote:8000  # Remote registry`,
		RunE: runTraceCommand,
	}

	cmd.Flags().String("registry-url", "", "Registry URL (overrides host/port)")
	cmd.Flags().String("registry-host", "", "Registry host (default: localhost)")
	cmd.Flags().Int("registry-port", 0, "Registry port (default: 8000)")
	cmd.Flags().String("registry-scheme", "http", "Registry URL scheme (http/https)")
	cmd.Flags().Bool("insecure", false, "Skip TLS certificate verification")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

func runTraceCommand(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registryURL, _ := cmd.Flags().GetString("registry-url")
	registryHost, _ := cmd.Flags().GetString("registry-host")
	registryPort, _ := cmd.Flags().GetInt("registry-port")
	registryScheme, _ := cmd.Flags().GetString("registry-scheme")
	insecure, _ := cmd.Flags().GetBool("insecure")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	finalRegistryURL := determineRegistryURL(config, registryURL, registryHost, registryPort, registryScheme)
	configureHTTPClientWithTLS(10, insecure)

	info, err := queryTraceInfo(registryHTTPClient, finalRegistryURL)
	if err != nil {
		return fmt.Errorf("failed to query trace info: %w", err)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Trace header:  %s\n", info.HeaderName)
	fmt.Printf("ID format:     %s\n", info.IDFormat)
	fmt.Printf("OTLP export:   %v\n", info.ExportActive)
	return nil
}

func queryTraceInfo(client *http.Client, registryURL string) (*TraceInfo, error) {
	resp, err := client.Get(registryURL + "/trace/info")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var info TraceInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse trace info response: %w", err)
	}
	return &info, nil
}
