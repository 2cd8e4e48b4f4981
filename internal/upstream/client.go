// Package upstream talks to the exchange's market data API: STS token
// lifecycle, retried GETs, and the time-sliced fetchers the ingesters
// consume.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nordpool-dataplane/internal/metrics"
)

const (
	defaultBaseURL = "https://data-api.nordpoolgroup.com"
	defaultSTSURL  = "https://sts.nordpoolgroup.com"

	// Static public client of the market data API, pre-encoded for the
	// Basic header ("client_marketdata_api:client_marketdata_api").
	basicClientCredentials = "Y2xpZW50X21hcmtldGRhdGFfYXBpOmNsaWVudF9tYXJrZXRkYXRhX2FwaQ=="

	tokenScope = "marketdata_api"

	defaultTimeout    = 45 * time.Second
	defaultMaxRetries = 5
)

// Retry backoff bounds; vars so tests can shrink them.
var (
	backoffMin = 2 * time.Second
	backoffMax = 60 * time.Second
)

// ErrDisabled is returned when no upstream credentials are configured.
var ErrDisabled = errors.New("upstream: no credentials configured")

// errAuthExpired signals a 401 that should trigger one token refresh.
var errAuthExpired = errors.New("upstream: token expired")

// StatusError is a non-2xx response that is not retryable (4xx other than 401).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: HTTP %d: %s", e.Code, e.Body)
}

// Config configures the upstream client.
type Config struct {
	BaseURL  string
	STSURL   string
	Username string
	Password string

	Timeout        time.Duration // per-request, default 45s
	MaxRetries     int           // transport/5xx retries, default 5
	RequestsPerSec float64       // rate limit, default 5
	RevisionChunk  time.Duration // slice size for the revision stream, default 4h
}

// Client is the authenticated HTTP client for the market data API. A single
// bearer token is held in memory and refreshed on demand.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	mx         *metrics.Metrics // nil-safe

	mu    sync.Mutex
	token string
}

// New creates an upstream client. Credentials may be empty; the client then
// reports Enabled() == false and every call fails with ErrDisabled.
func New(cfg Config, mx *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.STSURL == "" {
		cfg.STSURL = defaultSTSURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.RevisionChunk == 0 {
		cfg.RevisionChunk = 4 * time.Hour
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		mx:         mx,
	}
}

func (c *Client) countRequest(path, outcome string) {
	if c.mx != nil {
		c.mx.UpstreamRequests.WithLabelValues(path, outcome).Inc()
	}
}

// Enabled reports whether upstream credentials are configured.
func (c *Client) Enabled() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}

// refreshToken performs the STS password grant and stores the new token.
func (c *Client) refreshToken(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("scope", tokenScope)
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.STSURL, "/")+"/connect/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicClientCredentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("token decode: %w", err)
	}
	if tok.AccessToken == "" {
		return errors.New("upstream: empty access_token in STS response")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	log.Printf("[upstream] token refreshed")
	return nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	if err := c.refreshToken(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

// doRequest performs one authenticated GET against the data API.
// Transport errors and 5xx are retried with exponential backoff up to
// MaxRetries; a 401 triggers exactly one token refresh and retry.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	refreshed := false
	backoff := backoffMin

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, path, params)
		if err == nil {
			c.countRequest(path, "ok")
			return body, nil
		}

		if errors.Is(err, errAuthExpired) {
			if refreshed {
				c.countRequest(path, "error")
				return nil, fmt.Errorf("upstream: persistent 401 on %s: %w", path, err)
			}
			refreshed = true
			if rerr := c.refreshToken(ctx); rerr != nil {
				c.countRequest(path, "error")
				return nil, rerr
			}
			continue // does not count against the retry budget
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			c.countRequest(path, "error")
			return nil, err // 4xx other than 401: not retryable
		}

		if attempt >= c.cfg.MaxRetries {
			c.countRequest(path, "error")
			return nil, fmt.Errorf("upstream: %s failed after %d attempts: %w", path, attempt, err)
		}
		if c.mx != nil {
			c.mx.UpstreamRetries.Inc()
		}
		log.Printf("[upstream] %s attempt %d failed: %v (retrying in %v)", path, attempt, err, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *Client) doOnce(ctx context.Context, path string, params url.Values) ([]byte, error) {
	tok, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return nil, errAuthExpired
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}
