// Package render talks to the Vidu-compatible video generation API.
//
// The remote API is asynchronous: Submit creates a task and Status reports
// its progress. Polling until completion is left to the caller.
package render

import (
	"bytes"
	"context"
	"discord-video-bot/internal/metrics"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL           = "https://api.vidu.com/ent/v2"
	defaultHTTPTimeout       = 30 * time.Second
	defaultMovementAmplitude = "auto"
	maxErrorBody             = 4 << 10
)

// Config captures the settings needed to reach the render service.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client wraps the render service HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst. A
// non-positive rps leaves requests unpaced.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient constructs a render client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Timeout: timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	if c.cfg.BaseURL == "" {
		c.cfg.BaseURL = defaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit creates a reference-to-video task.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.MovementAmplitude == "" {
		req.MovementAmplitude = defaultMovementAmplitude
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode submit request: %w", err)
	}

	var out SubmitResponse
	if err := c.do(ctx, "submit", http.MethodPost, c.cfg.BaseURL+"/reference2video", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current state and creations of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := fmt.Sprintf("%s/tasks/%s/creations", c.cfg.BaseURL, url.PathEscape(taskID))

	var out TaskStatus
	if err := c.do(ctx, "status", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("render %s: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("render %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RenderRequests.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("render %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RenderRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("render %s: decode response: %w", op, err)
	}
	return nil
}
