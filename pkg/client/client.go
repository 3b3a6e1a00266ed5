package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a svcwatch daemon over its REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Token   string       // Optional bearer token, matching the daemon's server.token
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		// start and restart block for the confirmation window
		Timeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/settings", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

func (c *Client) List(ctx context.Context) ([]ServiceStatus, error) {
	var out []ServiceStatus
	err := c.do(ctx, http.MethodGet, "/services", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, index int) (ServiceDetail, error) {
	var out ServiceDetail
	err := c.do(ctx, http.MethodGet, servicePath(index, ""), nil, &out)
	return out, err
}

// Add registers svc and returns its index.
func (c *Client) Add(ctx context.Context, svc Service) (int, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/services", svc, &res); err != nil {
		return -1, err
	}
	if res.Index == nil {
		return -1, nil
	}
	return *res.Index, nil
}

func (c *Client) Update(ctx context.Context, index int, svc Service) error {
	return c.do(ctx, http.MethodPut, servicePath(index, ""), svc, nil)
}

func (c *Client) Delete(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodDelete, servicePath(index, ""), nil, nil)
}

// Start starts the service at index. With async the daemon answers as soon
// as the launch is reserved.
func (c *Client) Start(ctx context.Context, index int, async bool) (Result, error) {
	p := servicePath(index, "/start")
	if async {
		p += "?async=true"
	}
	var res Result
	err := c.do(ctx, http.MethodPost, p, nil, &res)
	return res, err
}

func (c *Client) Stop(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodPost, servicePath(index, "/stop"), nil, nil)
}

func (c *Client) Restart(ctx context.Context, index int) error {
	return c.do(ctx, http.MethodPost, servicePath(index, "/restart"), nil, nil)
}

func (c *Client) StartAll(ctx context.Context) (StartAllResult, error) {
	var out StartAllResult
	err := c.do(ctx, http.MethodPost, "/services/start-all", nil, &out)
	return out, err
}

// StopAll returns the daemon's summary message.
func (c *Client) StopAll(ctx context.Context) (string, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/services/stop-all", nil, &res)
	return res.Message, err
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, s Settings) error {
	return c.do(ctx, http.MethodPut, "/settings", s, nil)
}

// Events returns up to limit recent event lines, oldest first.
func (c *Client) Events(ctx context.Context, limit int) ([]string, error) {
	p := "/events"
	if limit > 0 {
		p += "?limit=" + strconv.Itoa(limit)
	}
	var out []string
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// StreamEvents connects to the event websocket and calls fn for each line
// until ctx is cancelled or the connection drops. recent lines of history are
// delivered first.
func (c *Client) StreamEvents(ctx context.Context, recent int, fn func(line string)) error {
	u, err := url.Parse(c.baseURL + "/events/ws")
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if recent > 0 {
		u.RawQuery = "recent=" + strconv.Itoa(recent)
	}

	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(string(msg))
	}
}

func servicePath(index int, suffix string) string {
	return "/services/" + strconv.Itoa(index) + suffix
}

// do sends body as JSON and decodes a 2xx response into out when out is not
// nil. Failures are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", req.URL.String())
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
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
	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", res.Message, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: res.Message}
}
