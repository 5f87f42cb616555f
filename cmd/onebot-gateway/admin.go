// ABOUTME: health, connections and sessions subcommands
// ABOUTME: Thin HTTP client for the running gateway's admin API

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/onebot-gateway/internal/config"
)

const adminRequestTimeout = 10 * time.Second

type connectionsView struct {
	Connections []struct {
		ID            string    `json:"id"`
		SelfID        int64     `json:"self_id"`
		Role          string    `json:"role"`
		RemoteAddr    string    `json:"remote_addr"`
		State         string    `json:"state"`
		ConnectedAt   time.Time `json:"connected_at"`
		LastHeartbeat time.Time `json:"last_heartbeat"`
		QueuedEvents  int       `json:"queued_events"`
	} `json:"connections"`
	PendingActions int `json:"pending_actions"`
}

type sessionsView struct {
	MaxQueue int `json:"max_queue"`
	Sessions []struct {
		Key    string `json:"key"`
		Active bool   `json:"active"`
		Queued int    `json:"queued"`
	} `json:"sessions"`
}

// adminClient talks to the admin API named in the config.
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient(cfg *config.Config) (*adminClient, error) {
	if !cfg.Server.AdminEnabled() {
		return nil, errors.New("admin API is disabled (server.admin_addr is \"-\")")
	}
	host, port, err := net.SplitHostPort(cfg.Server.AdminAddr)
	if err != nil {
		return nil, fmt.Errorf("parsing admin address: %w", err)
	}
	// A wildcard listen address is reachable on loopback.
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return &adminClient{
		baseURL: "http://" + net.JoinHostPort(host, port),
		token:   cfg.Server.AccessToken,
		http:    &http.Client{Timeout: adminRequestTimeout},
	}, nil
}

func loadAdminClient() (*adminClient, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newAdminClient(cfg)
}

// get fetches path and returns the status code and body.
func (c *adminClient) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// getJSON fetches path and decodes a 200 response into v.
func (c *adminClient) getJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: status %d: %s", path, status, apiErr.Error)
		}
		return fmt.Errorf("%s: status %d", path, status)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the gateway is up and a bridge is connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadAdminClient()
			if err != nil {
				return err
			}
			return runHealth(cmd.Context(), c, cmd.OutOrStdout())
		},
	}
}

func runHealth(ctx context.Context, c *adminClient, out io.Writer) error {
	status, _, err := c.get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	status, body, err := c.get(ctx, "/health/ready")
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("not ready: %s", body)
	}
	fmt.Fprintf(out, "healthy: %s\n", body)
	return nil
}

func connectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List connected bridges",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadAdminClient()
			if err != nil {
				return err
			}
			return runConnections(cmd.Context(), c, cmd.OutOrStdout())
		},
	}
}

func runConnections(ctx context.Context, c *adminClient, out io.Writer) error {
	var view connectionsView
	if err := c.getJSON(ctx, "/api/connections", &view); err != nil {
		return err
	}
	if len(view.Connections) == 0 {
		fmt.Fprintln(out, "No bridges connected.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSELF ID\tROLE\tREMOTE\tSTATE\tCONNECTED\tQUEUED")
	for _, conn := range view.Connections {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%d\n",
			conn.ID, conn.SelfID, orDash(conn.Role), conn.RemoteAddr, conn.State,
			conn.ConnectedAt.Local().Format("2006-01-02 15:04:05"), conn.QueuedEvents)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d pending actions\n", view.PendingActions)
	return nil
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show admission gate occupancy per session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadAdminClient()
			if err != nil {
				return err
			}
			return runSessions(cmd.Context(), c, cmd.OutOrStdout())
		},
	}
}

func runSessions(ctx context.Context, c *adminClient, out io.Writer) error {
	var view sessionsView
	if err := c.getJSON(ctx, "/api/sessions", &view); err != nil {
		return err
	}
	if view.MaxQueue < 0 {
		fmt.Fprintln(out, "max queue: unbounded")
	} else {
		fmt.Fprintf(out, "max queue: %d\n", view.MaxQueue)
	}
	if len(view.Sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tACTIVE\tQUEUED")
	for _, s := range view.Sessions {
		fmt.Fprintf(w, "%s\t%t\t%d\n", s.Key, s.Active, s.Queued)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
