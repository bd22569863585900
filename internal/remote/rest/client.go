// Package rest talks to the backend service over its PostgREST-style HTTP
// interface.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	// Location is applied to timestamps that carry no zone.
	Location  *time.Location
	HTTPProxy string
	Timeout   time.Duration
}

// Client implements remote.Service over HTTP.
type Client struct {
	base   *url.URL
	apiKey string
	loc    *time.Location
	http   *http.Client
	log    *log.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for opts.BaseURL.
func New(opts Options, logger *log.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", opts.BaseURL, err)
	}

	var transport http.RoundTripper = &http.Transport{}
	if opts.HTTPProxy != "" {
		proxyURL, err := url.Parse(opts.HTTPProxy)
		if err != nil {
			logger.Printf("[WARN] Invalid proxy URL %q: %v. Remote client will not use a proxy.", opts.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Client{
		base:   base,
		apiKey: opts.APIKey,
		token:  opts.AccessToken,
		loc:    loc,
		http:   &http.Client{Transport: transport, Timeout: timeout},
		log:    logger,
	}, nil
}

// SetAccessToken replaces the bearer token used for requests.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// request describes one call against a table endpoint.
type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := *c.base
	u.Path = u.Path + "/rest/v1/" + r.table
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "received status code " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("received status code %d: %s", e.Code, e.Body)
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, table: ""}, nil)
}
