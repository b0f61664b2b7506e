package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/donghwi-dev/portfolio-agent/internal/clifmt"
)

// newApproveCmd resolves a pending prompt through the running daemon's API,
// for driving the flow from a terminal instead of the browser.
func newApproveCmd() *cobra.Command {
	var reject bool
	var daemonURL string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve (or reject) a pending action prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("missing approval id")
			}
			base := strings.TrimSpace(daemonURL)
			if base == "" {
				base = "http://localhost" + normalizeAddr(viper.GetString("server.addr"))
			}

			payload, _ := json.Marshal(map[string]any{"approved": !reject})
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Post(
				strings.TrimRight(base, "/")+"/api/approvals/"+id,
				"application/json",
				bytes.NewReader(payload),
			)
			if err != nil {
				return fmt.Errorf("reach daemon: %w", err)
			}
			defer resp.Body.Close()

			var body struct {
				Resolved bool   `json:"resolved"`
				Status   string `json:"status"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if !body.Resolved {
				fmt.Println(clifmt.Warn("prompt not found (already resolved or expired): " + id))
				return nil
			}
			if reject {
				fmt.Println(clifmt.Failure("rejected " + id))
			} else {
				fmt.Println(clifmt.Success("approved " + id))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	cmd.Flags().StringVar(&daemonURL, "daemon", "", "daemon base URL (default from server.addr)")
	return cmd
}

// normalizeAddr turns a listen address like ":8787" into a host suffix.
func normalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8787"
	}
	if strings.HasPrefix(addr, ":") {
		return addr
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":" + addr
}
