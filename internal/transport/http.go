// Package transport is the HTTP capability the rest of the pipeline is
// built against: a request/response function returning status, body, and
// headers. Component boundaries (instrument store, quote fetcher) depend
// only on the Transport interface so they can be driven by a fake in tests;
// Client is the concrete net/http realization used in production.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Transport performs one HTTP request and returns its status code, body,
// and response headers.
type Transport interface {
	Do(ctx context.Context, method, path string, query url.Values, headers http.Header) (status int, body []byte, respHeaders http.Header, err error)
}

// Client is a net/http-backed Transport tuned for many small, bursty
// requests to a single upstream host: a large idle-connection pool reused
// across requests rather than paying a TLS handshake per call.
type Client struct {
	http    *http.Client
	baseURL string
}

// Config controls connection/request deadlines for a Client.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns the spec's default deadlines: 10s connect, 30s request.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// NewClient builds a Client with a connection-reuse-tuned transport.
func NewClient(cfg Config) *Client {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     120 * time.Second,
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.RequestTimeout, Transport: tr},
		baseURL: cfg.BaseURL,
	}
}

// Do issues one HTTP request against baseURL+path with the given query
// params and headers.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, headers http.Header) (int, []byte, http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "boxscan/1.0")
	req.Header.Set("Accept", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, resp.Header, nil
}
