package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/underla/helpdesk/internal/config"
	"github.com/underla/helpdesk/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show helpdesk status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Helpdesk %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			// Load config
			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:  not found (using defaults)")
				} else {
					fmt.Printf("Config:  error loading: %v\n", err)
				}
				return nil
			}

			fmt.Printf("Server:  port=%d bind=%s tls=%v\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Server.TLS.Enabled)
			fmt.Printf("Store:   driver=%s\n", cfg.Store.Driver)
			fmt.Printf("Auth:    mode=%s tokens=%d\n", cfg.Auth.Mode, len(cfg.Auth.Tokens))

			if cfg.AI.APIKey != "" {
				fmt.Printf("AI:      model=%s\n", cfg.AI.Model)
			} else {
				fmt.Println("AI:      (no API key — fallback replies only)")
			}

			// Probe the running server
			probeHealth(cfg.Server.Port)

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

// probeHealth asks a locally running server for its health report.
func probeHealth(port int) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		fmt.Println("Health:  server not running")
		return
	}
	defer resp.Body.Close()

	var payload struct {
		Status      string  `json:"status"`
		Uptime      float64 `json:"uptime"`
		Connections int     `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Printf("Health:  unexpected response: %v\n", err)
		return
	}
	fmt.Printf("Health:  %s uptime=%s connections=%d\n",
		payload.Status, (time.Duration(payload.Uptime)*time.Second).String(), payload.Connections)
}
