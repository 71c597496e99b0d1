package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the shared HTTP client for the hosted backend. Every call is
// scoped by the caller's context so in-flight requests are aborted when the
// originating request is torn down.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// New creates a backend client for the given project URL and anon key.
func New(baseURL, anonKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		AnonKey:    anonKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// newRequest builds a request with the standard backend headers. When token
// is empty the anon key doubles as the bearer token, matching how the hosted
// backend expects unauthenticated calls.
func (c *Client) newRequest(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	token string,
	body any,
) (*http.Request, error) {

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	bearer := token
	if bearer == "" {
		bearer = c.AnonKey
	}

	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// doJSON executes the request and decodes a JSON response into dest (which
// may be nil for calls whose response body is irrelevant). Non-2xx responses
// are decoded into *APIError.
func (c *Client) doJSON(req *http.Request, dest any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			// Body may not be JSON on proxy-level failures; the status
			// code alone still yields a usable message.
			_ = json.Unmarshal(data, apiErr)
		}
		return apiErr
	}

	if dest == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("backend: failed to decode response: %w", err)
	}

	return nil
}
