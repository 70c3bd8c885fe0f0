// Package client talks to a running gemini-bridge server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

// DefaultBaseURL is used when neither a flag nor API_URL names a server
const DefaultBaseURL = "http://localhost:3000"

// Client is a thin JSON client for the automation API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. timeout bounds each request, including the wait for a reply.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address requests go to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Result is the decoded reply of an automation call, successful or not
type Result struct {
	StatusCode int
	Success    bool   `json:"success"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	Timestamp  string `json:"timestamp"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

// OK reports whether the server answered 2xx
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Automate posts prompt to the automation endpoint. prompt is sent as is,
// so non-string values can be used to exercise validation.
func (c *Client) Automate(ctx context.Context, prompt any) (*Result, error) {
	body, err := json.Marshal(map[string]any{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var res Result
	status, err := c.do(ctx, http.MethodPost, "/api/gemini-automation", body, &res)
	if err != nil {
		return nil, err
	}
	res.StatusCode = status
	return &res, nil
}

// Status fetches GET /
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var res models.StatusResponse
	if _, err := c.do(ctx, http.MethodGet, "/", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CloseBrowser asks the server to tear its browser down
func (c *Client) CloseBrowser(ctx context.Context) (*models.CloseResponse, error) {
	var res models.CloseResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/close-browser", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s response (status %d): %w", method, path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
