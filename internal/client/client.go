// Package client calls a running estimator over HTTP.
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"

	"github.com/JakeFAU/graded-card-estimator/internal/api"
	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
	"github.com/JakeFAU/graded-card-estimator/internal/gamestop"
)

// Config addresses the server.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("estimator returned %d", e.StatusCode)
	}
	return fmt.Sprintf("estimator returned %d: %s", e.StatusCode, e.Detail)
}

// Client is a thin resty wrapper around the estimator routes.
type Client struct {
	http *resty.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	rc := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		rc.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &Client{http: rc}, nil
}

// Estimate fetches the estimate for cert.
func (c *Client) Estimate(ctx context.Context, cert string) (estimate.Estimate, error) {
	var out estimate.Estimate
	err := c.get(ctx, "/gamestop/estimate", map[string]string{"psa_cert": cert}, &out)
	return out, err
}

// History fetches recent lookups for cert. A non-positive limit uses the
// server default.
func (c *Client) History(ctx context.Context, cert string, limit int) (api.HistoryResponse, error) {
	params := map[string]string{"psa_cert": cert}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	var out api.HistoryResponse
	err := c.get(ctx, "/gamestop/estimate/history", params, &out)
	return out, err
}

// SiteCheck runs the server's static site probe.
func (c *Client) SiteCheck(ctx context.Context) (gamestop.ProbeReport, error) {
	var out gamestop.ProbeReport
	err := c.get(ctx, "/gamestop/sitecheck", nil, &out)
	return out, err
}

// Health reports whether the server answers its health route.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("unexpected health status %q", out["status"])
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, result any) error {
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}
