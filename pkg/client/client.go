// Package client lets features ask usagegate for an allowance before doing
// metered work.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/models"
)

// Feature costs, re-exported for callers that only import the client.
const (
	CostAnalyze  = models.CostAnalyze
	CostChat     = models.CostChat
	CostJobMatch = models.CostJobMatch
	CostRevision = models.CostRevision
)

// Client talks to the usagegate HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Client for baseURL. A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Allow spends cost units for userID and reports whether the action may go
// ahead. Any failure to get a clear approval returns false.
func (c *Client) Allow(ctx context.Context, userID string, cost int64) bool {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.post(ctx, "/api/usage/check", map[string]any{"userId": userID, "cost": cost}, &out); err != nil {
		c.logger.Warn("usage check failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return out.Allowed
}

// Usage returns the units userID has consumed today.
func (c *Client) Usage(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Usage *int64 `json:"usage"`
		Error string `json:"error"`
	}
	if err := c.post(ctx, "/api/usage", map[string]any{"userId": userID}, &out); err != nil {
		return 0, err
	}
	if out.Usage == nil {
		return 0, fmt.Errorf("usage response missing usage: %s", out.Error)
	}
	return *out.Usage, nil
}

// post sends body as JSON and decodes the response into out. Non-2xx
// responses are still decoded so callers can read error bodies.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
