package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#42c767"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05252"))
)

func statusCmd() *cobra.Command {
	var (
		server   string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server and node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(titleStyle.Render("CloudRive Status"))
			fmt.Println()

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Get(server + "/health")
			if err != nil {
				fmt.Printf("Server:  %s (%v)\n", badStyle.Render("unreachable"), err)
				return nil
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Printf("Server:  %s (%s)\n", badStyle.Render("unhealthy"), resp.Status)
				return nil
			}
			fmt.Printf("Server:  %s at %s\n", okStyle.Render("healthy"), server)

			if email == "" || password == "" {
				fmt.Println("\nPass --email and --password to include node status.")
				return nil
			}

			client, err := newAdminClient(server, email, password)
			if err != nil {
				return err
			}

			nodeResp, err := client.do(http.MethodGet, "/nodes", nil)
			if err != nil {
				return err
			}
			defer nodeResp.Body.Close()

			var nodes []nodeInfo
			if err := json.NewDecoder(nodeResp.Body).Decode(&nodes); err != nil {
				return fmt.Errorf("failed to parse node list: %w", err)
			}

			onlineCount := 0
			for _, n := range nodes {
				if n.Online {
					onlineCount++
				}
			}

			fmt.Printf("Nodes:   %d registered, %d online\n\n", len(nodes), onlineCount)
			if len(nodes) > 0 {
				fmt.Println(renderNodeTable(nodes))
			}

			// Each daemon gets a live probe regardless of its stored flag;
			// the flag is placement policy, not observed health.
			fmt.Println(titleStyle.Render("Daemon probes"))
			for _, n := range nodes {
				if err := checkDaemonHealth(n.BaseURL); err != nil {
					fmt.Printf("  %s %s: %v\n", badStyle.Render("✗"), n.Name, err)
				} else {
					fmt.Printf("  %s %s\n", okStyle.Render("✓"), n.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "API server base URL")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")

	return cmd
}
