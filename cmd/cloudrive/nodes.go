package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// adminClient is a thin caller for the node admin endpoints. Every
// subcommand logs in first; the server has no unauthenticated admin
// surface.
type adminClient struct {
	server string
	token  string
	http   *http.Client
}

type nodeInfo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	BaseURL       string `json:"base_url"`
	Online        bool   `json:"online"`
	CapacityBytes int64  `json:"capacity_bytes"`
}

func newAdminClient(server, email, password string) (*adminClient, error) {
	c := &adminClient{server: server, http: &http.Client{Timeout: 15 * time.Second}}

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := c.http.Post(server+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to reach server at %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: %s", readDetail(resp))
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	c.token = token.AccessToken
	return c, nil
}

func (c *adminClient) do(method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.server+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func readDetail(resp *http.Response) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return fmt.Sprintf("server returned %s", resp.Status)
}

func nodesCmd() *cobra.Command {
	var (
		server   string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Manage storage nodes",
		Long:  `Register, list and administer the storage daemons known to the server.`,
	}

	cmd.PersistentFlags().StringVar(&server, "server", "http://localhost:8000", "API server base URL")
	cmd.PersistentFlags().StringVar(&email, "email", "", "account email")
	cmd.PersistentFlags().StringVar(&password, "password", "", "account password")
	cmd.MarkPersistentFlagRequired("email")
	cmd.MarkPersistentFlagRequired("password")

	cmd.AddCommand(
		nodesRegisterCmd(&server, &email, &password),
		nodesListCmd(&server, &email, &password),
		nodesSetOnlineCmd(&server, &email, &password),
		nodesRemoveCmd(&server, &email, &password),
	)

	return cmd
}

func nodesRegisterCmd(server, email, password *string) *cobra.Command {
	var (
		name      string
		baseURL   string
		capacity  int64
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Enroll a storage daemon",
		Long:  `Health-check a running storage daemon and register it with the server as an online node.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipCheck {
				if err := checkDaemonHealth(baseURL); err != nil {
					return fmt.Errorf("daemon at %s is not healthy: %w", baseURL, err)
				}
			}

			client, err := newAdminClient(*server, *email, *password)
			if err != nil {
				return err
			}

			resp, err := client.do(http.MethodPost, "/nodes", map[string]any{
				"name":           name,
				"base_url":       baseURL,
				"online":         true,
				"capacity_bytes": capacity,
			})
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("registration failed: %s", readDetail(resp))
			}

			var node nodeInfo
			if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#42c767")).Render("✓")
			fmt.Printf("%s Registered node %s (id %d) at %s\n", ok, node.Name, node.ID, node.BaseURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "unique node name")
	cmd.Flags().StringVar(&baseURL, "url", "", "daemon base URL, e.g. http://10.0.0.5:9000")
	cmd.Flags().Int64Var(&capacity, "capacity", 0, "advertised capacity in bytes (0 = unknown)")
	cmd.Flags().BoolVar(&skipCheck, "skip-health-check", false, "register without probing the daemon")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")

	return cmd
}

func checkDaemonHealth(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}

func nodesListCmd(server, email, password *string) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClient(*server, *email, *password)
			if err != nil {
				return err
			}

			resp, err := client.do(http.MethodGet, fmt.Sprintf("/nodes?page=%d", page), nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("listing failed: %s", readDetail(resp))
			}

			var nodes []nodeInfo
			if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if len(nodes) == 0 {
				fmt.Println("No storage nodes registered.")
				return nil
			}

			fmt.Println(renderNodeTable(nodes))
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func renderNodeTable(nodes []nodeInfo) string {
	online := lipgloss.NewStyle().Foreground(lipgloss.Color("#42c767"))
	offline := lipgloss.NewStyle().Foreground(lipgloss.Color("#e05252"))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "NAME", "URL", "STATUS", "CAPACITY")

	for _, n := range nodes {
		status := offline.Render("offline")
		if n.Online {
			status = online.Render("online")
		}
		capacity := "-"
		if n.CapacityBytes > 0 {
			capacity = formatBytes(n.CapacityBytes)
		}
		t.Row(fmt.Sprintf("%d", n.ID), n.Name, n.BaseURL, status, capacity)
	}

	return t.Render()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func nodesSetOnlineCmd(server, email, password *string) *cobra.Command {
	var (
		nodeID int64
		online bool
	)

	cmd := &cobra.Command{
		Use:   "set-online",
		Short: "Flip a node's liveness flag",
		Long:  `Mark a node online or offline. Offline nodes receive no new chunks and are skipped on download.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClient(*server, *email, *password)
			if err != nil {
				return err
			}

			resp, err := client.do(http.MethodPatch, fmt.Sprintf("/nodes/%d/online", nodeID), map[string]bool{"online": online})
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("update failed: %s", readDetail(resp))
			}

			state := "offline"
			if online {
				state = "online"
			}
			fmt.Printf("Node %d is now %s\n", nodeID, state)
			return nil
		},
	}

	cmd.Flags().Int64Var(&nodeID, "id", 0, "node id")
	cmd.Flags().BoolVar(&online, "online", true, "desired liveness")
	cmd.MarkFlagRequired("id")
	return cmd
}

func nodesRemoveCmd(server, email, password *string) *cobra.Command {
	var nodeID int64

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a node",
		Long:  `Delete a node and its chunk location records. Blobs on the daemon's disk are left behind.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAdminClient(*server, *email, *password)
			if err != nil {
				return err
			}

			resp, err := client.do(http.MethodDelete, fmt.Sprintf("/nodes/%d", nodeID), nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("removal failed: %s", readDetail(resp))
			}

			fmt.Printf("Node %d removed\n", nodeID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&nodeID, "id", 0, "node id")
	cmd.MarkFlagRequired("id")
	return cmd
}
