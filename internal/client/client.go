// Package client talks to a task router server over its /query protocol.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/randalmurphal/taskrouter/internal/server"
)

// APIError is a non-200 reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client sends queries and approval decisions.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (for example http://127.0.0.1:5000).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// URL returns the query endpoint.
func (c *Client) URL() string {
	return c.baseURL + "/query"
}

// Query submits text. An empty sessionID lets the server assign one.
func (c *Client) Query(ctx context.Context, sessionID, text string) (*server.QueryResponse, error) {
	return c.post(ctx, server.QueryRequest{Text: text, SessionID: sessionID})
}

// Resume answers the session's pending approval.
func (c *Client) Resume(ctx context.Context, sessionID, decision string) (*server.QueryResponse, error) {
	return c.post(ctx, server.QueryRequest{Resume: &decision, SessionID: sessionID})
}

func (c *Client) post(ctx context.Context, body server.QueryRequest) (*server.QueryResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var out server.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
