package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with the proclist daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8931/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new proclist API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8931/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Search returns the records matching keyword, in snapshot order. An
// empty keyword returns the whole snapshot. fallback controls whether
// the daemon may answer from a direct host scan when its cache is
// invalid and does not become valid within its wait budget.
func (c *Client) Search(ctx context.Context, keyword string, fallback bool) ([]Record, error) {
	c.logger.Debug("Searching records", "keyword", keyword, "fallback", fallback)

	q := url.Values{}
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if !fallback {
		q.Set("fallback", "false")
	}
	u := c.baseURL + "/records"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	var records []Record
	if err := c.doRequest(ctx, "GET", u, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Get fetches a single record by id
func (c *Client) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := c.doRequest(ctx, "GET", c.baseURL+"/records/"+url.PathEscape(id), &rec)
	return rec, err
}

// Remove deletes a record from the daemon's current snapshot
func (c *Client) Remove(ctx context.Context, id string) error {
	c.logger.Debug("Removing record", "id", id)
	return c.doRequest(ctx, "DELETE", c.baseURL+"/records/"+url.PathEscape(id), nil)
}

// PortOwner returns the record listening on the given port
func (c *Client) PortOwner(ctx context.Context, port int) (Record, error) {
	var rec Record
	err := c.doRequest(ctx, "GET", c.baseURL+"/ports/"+strconv.Itoa(port), &rec)
	return rec, err
}

// Refresh forces an immediate snapshot rebuild and reports the record
// count after the rebuild
func (c *Client) Refresh(ctx context.Context) (RefreshResult, error) {
	c.logger.Debug("Forcing refresh")

	var res RefreshResult
	err := c.doRequest(ctx, "POST", c.baseURL+"/refresh", &res)
	return res, err
}

// Invalidate marks the daemon's snapshot invalid without clearing it
func (c *Client) Invalidate(ctx context.Context) error {
	return c.doRequest(ctx, "POST", c.baseURL+"/invalidate", nil)
}

// Validity reports the daemon's snapshot state
func (c *Client) Validity(ctx context.Context) (Validity, error) {
	var v Validity
	err := c.doRequest(ctx, "GET", c.baseURL+"/validity", &v)
	return v, err
}

// Journal returns the most recent journal events, newest first. A limit
// of zero or less asks for the server default.
func (c *Client) Journal(ctx context.Context, limit int) ([]Event, error) {
	u := c.baseURL + "/journal"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var events []Event
	if err := c.doRequest(ctx, "GET", u, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// doRequest performs an HTTP request with common error handling and
// decodes the response body into out when out is non-nil
func (c *Client) doRequest(ctx context.Context, method, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
