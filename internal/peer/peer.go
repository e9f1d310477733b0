// Package peer implements the HTTP client for an upstream sensorlog
// server. A store configured with a peer fetches archive data over
// HTTP instead of from local storage.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("peer")

// ErrArchiveUnavailable signals that the peer could not be reached at
// the transport level. HTTP-level failures (non-200 statuses) are
// reported as ordinary errors.
var ErrArchiveUnavailable = errors.New("peer archive not available")

// Config configures a Client.
type Config struct {
	// URL is the peer's base URL, e.g. "http://sensors.local:8000".
	URL string

	// Timeout bounds each request.
	Timeout time.Duration

	// Format is the serialization format to request.
	Format format.Format
}

// Client fetches serialized reading tables from a peer.
type Client struct {
	baseURL string
	format  format.Format
	http    *http.Client
}

// New creates a Client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaults.DefaultPeerTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		format:  cfg.Format,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the peer's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Format returns the transfer format.
func (c *Client) Format() format.Format {
	return c.format
}

func (c *Client) archiveURL() string {
	return fmt.Sprintf("%s/archive/%s/", c.baseURL, c.format.ID())
}

// FetchArchive retrieves the peer's full current view.
func (c *Client) FetchArchive(ctx context.Context) (schema.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.archiveURL(), nil)
	if err != nil {
		return schema.Table{}, fmt.Errorf("build archive request: %w", err)
	}
	return c.fetch(req)
}

// FetchSince retrieves the peer's readings from ts on. The timestamp
// travels as a JSON string in the request body.
func (c *Client) FetchSince(ctx context.Context, ts time.Time) (schema.Table, error) {
	body, err := json.Marshal(ts.UTC())
	if err != nil {
		return schema.Table{}, fmt.Errorf("encode timestamp: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.archiveURL(), bytes.NewReader(body))
	if err != nil {
		return schema.Table{}, fmt.Errorf("build archive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.fetch(req)
}

func (c *Client) fetch(req *http.Request) (schema.Table, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return schema.Table{}, fmt.Errorf("%w: %v", ErrArchiveUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return schema.Table{}, fmt.Errorf("peer returned status %d for %s", resp.StatusCode, req.URL)
	}

	log.Debug("archive response",
		"url", req.URL.String(),
		"format", c.format.ID(),
		"content_length", resp.ContentLength)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.Table{}, fmt.Errorf("%w: %v", ErrArchiveUnavailable, err)
	}

	table, err := c.format.Deserialize(data)
	if err != nil {
		return schema.Table{}, fmt.Errorf("decode peer payload: %w", err)
	}
	if err := table.Validate(); err != nil {
		return schema.Table{}, fmt.Errorf("peer payload failed validation: %w", err)
	}
	return table, nil
}

// RegisterForwarding asks the peer to forward each new reading to the
// caller's address.
func (c *Client) RegisterForwarding(ctx context.Context) error {
	return c.forwardingRequest(ctx, http.MethodPost)
}

// UnregisterForwarding removes the caller from the peer's forwarding
// list.
func (c *Client) UnregisterForwarding(ctx context.Context) error {
	return c.forwardingRequest(ctx, http.MethodDelete)
}

func (c *Client) forwardingRequest(ctx context.Context, method string) error {
	url := c.baseURL + "/register_forwarding_server/"
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("build forwarding request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forwarding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d for %s", resp.StatusCode, url)
	}
	return nil
}
