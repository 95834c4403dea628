// Package api is the bearer-authenticated client for the marketplace
// notification endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
)

// ErrUnauthorized is returned on a 401 response. Callers treat it as
// "user is logged out", not as a transient failure.
var ErrUnauthorized = errors.New("api: unauthorized")

// TokenSource supplies the current bearer token. Empty means no
// session.
type TokenSource interface {
	Token() string
}

// Client is the marketplace notification API client.
type Client struct {
	baseURL     string
	tokenSource TokenSource
	httpClient  *http.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new notification API client.
func NewClient(baseURL string, tokenSource TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		tokenSource: tokenSource,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// statusResponse is the body of every mutation endpoint.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FetchMy retrieves the authoritative feed and unread count.
func (c *Client) FetchMy(ctx context.Context) (*model.Feed, error) {
	resp, err := c.request(ctx, http.MethodGet, "/notifications/my", nil)
	if err != nil {
		return nil, err
	}

	var feed model.Feed
	if err := c.decodeResponse(resp, &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

// MarkRead confirms a single mark-as-read mutation.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.confirm(ctx, http.MethodPut, fmt.Sprintf("/notifications/%s/read", url.PathEscape(id)))
}

// MarkAllRead confirms a mark-all-read mutation.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.confirm(ctx, http.MethodPut, "/notifications/read-all")
}

// Delete confirms a single deletion.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.confirm(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%s", url.PathEscape(id)))
}

// ClearAll confirms a clear-all mutation.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.confirm(ctx, http.MethodDelete, "/notifications")
}

// RegisterPushToken registers the push channel token for the session.
func (c *Client) RegisterPushToken(ctx context.Context, token string) error {
	body := map[string]string{"fcmToken": token}
	resp, err := c.request(ctx, http.MethodPut, "/auth/fcm-token", body)
	if err != nil {
		return err
	}
	return c.decodeResponse(resp, nil)
}

func (c *Client) confirm(ctx context.Context, method, path string) error {
	resp, err := c.request(ctx, method, path, nil)
	if err != nil {
		return err
	}
	var status statusResponse
	if err := c.decodeResponse(resp, &status); err != nil {
		return err
	}
	if !status.Success {
		return fmt.Errorf("api: %s %s rejected: %s", method, path, status.Message)
	}
	return nil
}

// request makes an HTTP request to the API.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = u.Path + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenSource.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response body.
func (c *Client) decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("api: unexpected status %d", resp.StatusCode)
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}

	return nil
}
