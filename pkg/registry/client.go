// Package registry is the thin request layer for the application-command
// registry API. It issues list/create/update/delete calls at global and
// guild scope and surfaces structured errors; retry policy belongs to the
// sync engine, not here.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/herald/pkg/definition"
)

const (
	defaultBaseURL = "https://discord.com/api/v10"
	defaultTimeout = 30 * time.Second

	// The registry allows 50 requests/second per bot but command routes have
	// much tighter per-route buckets. 4/s with a small burst stays clear of
	// both without making large batches crawl.
	defaultRateLimit = rate.Limit(4)
	defaultBurstSize = 4

	userAgent = "Herald (https://github.com/odvcencio/herald, 1.0)"
)

// Scope identifies where a command lives: the global scope or one guild.
type Scope struct {
	GuildID string
}

// GlobalScope is the zero scope.
var GlobalScope = Scope{}

// GuildScope returns the scope for one guild.
func GuildScope(guildID string) Scope {
	return Scope{GuildID: guildID}
}

// IsGlobal reports whether the scope is the global one.
func (s Scope) IsGlobal() bool {
	return s.GuildID == ""
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "guild:" + s.GuildID
}

// Guild is one workspace the bot participates in.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// APIError is a structured registry error response.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("registry API error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("registry API error %d: %s", e.StatusCode, e.Message)
}

// ClientOptions tunes the client. Zero values fall back to defaults.
type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int
}

// Client issues authenticated requests against the registry.
type Client struct {
	token       string
	appID       string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// DefaultTransport returns an http.Transport with tuned connection pool
// settings.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient creates a registry client for one application.
func NewClient(token, appID string) *Client {
	return NewClientWithOptions(token, appID, ClientOptions{})
}

// NewClientWithOptions creates a registry client with explicit tuning.
func NewClientWithOptions(token, appID string, opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurstSize
	}

	return &Client{
		token:       token,
		appID:       appID,
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(limit, burst),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: DefaultTransport(),
		},
	}
}

// commandsURL builds the command collection route for a scope.
func (c *Client) commandsURL(scope Scope) string {
	if scope.IsGlobal() {
		return fmt.Sprintf("%s/applications/%s/commands", c.baseURL, c.appID)
	}
	return fmt.Sprintf("%s/applications/%s/guilds/%s/commands", c.baseURL, c.appID, scope.GuildID)
}

// List returns every command record currently registered in a scope.
func (c *Client) List(ctx context.Context, scope Scope) ([]definition.RemoteRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, c.commandsURL(scope), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var records []definition.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding command list: %w", err)
	}
	return records, nil
}

// Create registers a new command in a scope and returns the stored record.
func (c *Client) Create(ctx context.Context, scope Scope, payload *definition.Payload) (*definition.RemoteRecord, error) {
	return c.send(ctx, http.MethodPost, c.commandsURL(scope), payload)
}

// Update overwrites an existing command by id and returns the stored record.
func (c *Client) Update(ctx context.Context, scope Scope, id string, payload *definition.Payload) (*definition.RemoteRecord, error) {
	return c.send(ctx, http.MethodPatch, c.commandsURL(scope)+"/"+id, payload)
}

// Delete removes a command by id.
func (c *Client) Delete(ctx context.Context, scope Scope, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.commandsURL(scope)+"/"+id, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseError(resp)
	}
	return nil
}

// ListGuilds returns the guilds the bot participates in.
func (c *Client) ListGuilds(ctx context.Context) ([]Guild, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/users/@me/guilds?limit=200", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var guilds []Guild
	if err := json.NewDecoder(resp.Body).Decode(&guilds); err != nil {
		return nil, fmt.Errorf("decoding guild list: %w", err)
	}
	return guilds, nil
}

// send issues a request with a JSON payload and decodes the returned record.
func (c *Client) send(ctx context.Context, method, url string, payload *definition.Payload) (*definition.RemoteRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	resp, err := c.do(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var record definition.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decoding command record: %w", err)
	}
	return &record, nil
}

// do waits for the rate limiter, then performs one request. No retries.
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// errorResponse is the registry's error envelope.
type errorResponse struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// parseError reads an error response body into an APIError.
func (c *Client) parseError(resp *http.Response) error {
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Retryable:  retryable,
		}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		rawBody := string(body)
		if len(rawBody) > 500 {
			rawBody = rawBody[:500] + "..."
		}
		message := resp.Status
		if rawBody != "" {
			message = fmt.Sprintf("%s (raw: %s)", resp.Status, rawBody)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  retryable,
		}
	}

	message := errResp.Message
	if message == "" {
		message = resp.Status
	}

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	if retryAfter == 0 && errResp.RetryAfter > 0 {
		retryAfter = time.Duration(errResp.RetryAfter * float64(time.Second))
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       errResp.Code,
		Message:    message,
		Retryable:  retryable,
		RetryAfter: retryAfter,
	}
}

// parseRetryAfter parses the Retry-After header. The registry sends
// fractional seconds for its rate-limit buckets.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.ParseFloat(header, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}

	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}

	return 0
}
