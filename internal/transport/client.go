// Package transport is the HTTP layer of the swarmcast client: it applies
// API key authentication and unwraps the server's {data, error} envelope.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client provides HTTP client functionality with authentication.
type Client struct {
	http   *http.Client
	auth   Authenticator
	apiKey string
}

// New creates a new transport client with the specified authenticator.
func New(auth Authenticator, apiKey string) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	return &Client{
		http:   &http.Client{Timeout: DefaultHTTPTimeout},
		auth:   auth,
		apiKey: apiKey,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Auth returns the authenticator and key for non-HTTP handshakes.
func (c *Client) Auth() (Authenticator, string) {
	return c.auth, c.apiKey
}

// Do performs an HTTP request with authentication applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		c.auth.Apply(req, c.apiKey)
	}

	req.Header.Set("Accept", "application/json")
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewTransportError("", req.Method+" "+req.URL.Path, err)
	}
	return resp, nil
}

// Get performs a GET request and decodes the envelope data into target.
func (c *Client) Get(ctx context.Context, url string, target any) error {
	return c.call(ctx, http.MethodGet, url, nil, target)
}

// Post sends body as JSON and decodes the envelope data into target.
func (c *Client) Post(ctx context.Context, url string, body, target any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.WrapValidation("body", err)
	}
	return c.call(ctx, http.MethodPost, url, bytes.NewReader(data), target)
}

// Delete performs a DELETE request and decodes the envelope data into target.
func (c *Client) Delete(ctx context.Context, url string, target any) error {
	return c.call(ctx, http.MethodDelete, url, nil, target)
}

func (c *Client) call(ctx context.Context, method, url string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.WrapValidation("url", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, target)
}
