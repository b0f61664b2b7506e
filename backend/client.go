// Package backend talks to the upstream agent server over HTTP. All methods
// degrade gracefully: callers that see an error fall back to the canned
// responder rather than surfacing upstream failures to the user.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/donghwi-dev/portfolio-agent/internal/strutil"
)

const (
	defaultHealthTimeout = 8 * time.Second
	defaultStreamTimeout = 60 * time.Second

	// Upstream rejects oversized messages; clip before sending.
	maxMessageBytes = 10000
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string

	HealthTimeout time.Duration
	StreamTimeout time.Duration

	Log *slog.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient:    &http.Client{},
		UserAgent:     "portfolio-agent/1.0",
		HealthTimeout: defaultHealthTimeout,
		StreamTimeout: defaultStreamTimeout,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.UserAgent) != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type healthResponse struct {
	Status      string `json:"status"`
	AgentServer *struct {
		Status string `json:"status"`
	} `json:"agent_server"`
}

// CheckHealth reports whether the upstream agent server is reachable and
// self-reports healthy. Any failure means false; it never returns an error.
func (c *Client) CheckHealth(ctx context.Context) bool {
	if c == nil || c.BaseURL == "" {
		return false
	}
	timeout := c.HealthTimeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.logger().Debug("backend_health_unreachable", "error", err.Error())
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger().Debug("backend_health_status", "status_code", resp.StatusCode)
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&health); err != nil {
		c.logger().Debug("backend_health_decode_failed", "error", err.Error())
		return false
	}
	if health.Status != "healthy" {
		return false
	}
	if health.AgentServer != nil && health.AgentServer.Status != "healthy" {
		return false
	}
	return true
}

type queryRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

type queryResponse struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// SendQuery submits a chat message and returns the task id to stream results
// from. The message is clipped to the upstream size limit without splitting
// multi-byte characters.
func (c *Client) SendQuery(ctx context.Context, query string, sessionCtx map[string]any) (string, error) {
	if c == nil || c.BaseURL == "" {
		return "", fmt.Errorf("backend not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty query")
	}

	payload := queryRequest{
		Message: strutil.TruncateUTF8(query, maxMessageBytes),
		Context: sessionCtx,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/agent/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("send query: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return "", fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("query failed: status %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return "", fmt.Errorf("decode query response: %w", err)
	}
	if qr.Error != "" {
		return "", fmt.Errorf("query rejected: %s", qr.Error)
	}
	if strings.TrimSpace(qr.TaskID) == "" {
		return "", fmt.Errorf("query response missing task_id")
	}
	return qr.TaskID, nil
}

// Agent describes one agent registered on the upstream server.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type agentsResponse struct {
	Agents []Agent `json:"agents"`
}

// ListAgents returns the agents the upstream server reports. Used only by
// the status surface; an empty list with an error is fine there.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("backend not configured")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/agents", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list agents: status %d", resp.StatusCode)
	}
	var ar agentsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256*1024)).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return ar.Agents, nil
}
