// Package httpblob stores memory files on a remote asset host over HTTP.
//
// Files are addressed as <host>/api/assets/<avatar_id>/memory.bin and moved
// with plain GET and PUT requests.
package httpblob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/blob"
)

// Client implements blob.Store against an HTTP asset host.
type Client struct {
	hostURL    string
	httpClient *http.Client
}

// Config contains configuration for the HTTP blob store.
type Config struct {
	// HostURL is the base URL of the asset host, e.g. "http://localhost:8000".
	HostURL string

	// Timeout bounds each request. Defaults to 30 seconds.
	Timeout time.Duration
}

// NewClient creates an HTTP blob store client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.HostURL == "" {
		return nil, fmt.Errorf("httpblob: host URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		hostURL:    strings.TrimRight(cfg.HostURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Get downloads the memory file for an avatar.
//
// Returns blob.ErrNotFound on a 404 response.
func (c *Client) Get(ctx context.Context, avatarID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(avatarID), nil)
	if err != nil {
		return nil, fmt.Errorf("httpblob: Get: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpblob: Get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, blob.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpblob: Get: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpblob: Get: %w", err)
	}
	return data, nil
}

// Put uploads the memory file for an avatar.
func (c *Client) Put(ctx context.Context, avatarID string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(avatarID), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("httpblob: Put: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpblob: Put: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("httpblob: Put: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for the HTTP store.
func (c *Client) Close() error {
	return nil
}

func (c *Client) url(avatarID string) string {
	return fmt.Sprintf("%s/api/assets/%s/memory.bin", c.hostURL, avatarID)
}
