// Package objects talks to the Supabase Storage REST API.
package objects

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds storage client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client uploads objects to buckets and resolves their public URLs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a storage client for the project at cfg.BaseURL.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger.With("component", "objects"),
	}
}

// Upload stores data at bucket/path, overwriting an existing object.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, data []byte) error {
	endpoint, err := url.JoinPath(c.baseURL, "storage/v1/object", bucket, path)
	if err != nil {
		return fmt.Errorf("build upload url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.Header.Set("User-Agent", "Storyteller/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.Debug("uploaded object",
		"bucket", bucket,
		"path", path,
		"bytes", len(data),
	)

	return nil
}

// PublicURL returns the public address of bucket/path. The bucket must be
// public for the address to serve the object.
func (c *Client) PublicURL(bucket, path string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("storage base url is not configured")
	}
	u, err := url.JoinPath(c.baseURL, "storage/v1/object/public", bucket, path)
	if err != nil {
		return "", fmt.Errorf("build public url: %w", err)
	}
	return u, nil
}
