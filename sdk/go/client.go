package requestlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Requestline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Ref is a reference dict, one kind tag mapped to an entity id.
type Ref map[string]string

// UserRef builds a user reference.
func UserRef(id string) Ref { return Ref{"user": id} }

// GroupRef builds a group reference.
func GroupRef(id string) Ref { return Ref{"group": id} }

// RecordRef builds a record reference.
func RecordRef(id string) Ref { return Ref{"record": id} }

// Request represents the API request model.
type Request struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Type      string `json:"type"`
	TypeName  string `json:"type_name,omitempty"`
	Status    string `json:"status"`
	Title     string `json:"title,omitempty"`
	CreatedBy Ref    `json:"created_by,omitempty"`
	Receiver  Ref    `json:"receiver,omitempty"`
	Topic     Ref    `json:"topic,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	IsOpen    bool   `json:"is_open"`
	IsClosed  bool   `json:"is_closed"`
	IsExpired bool   `json:"is_expired"`
	Revision  int64  `json:"revision"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Event represents a timeline entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// RequestType describes a registered workflow type.
type RequestType struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Statuses map[string]string `json:"statuses"`
}

// CreateRequestOptions are the optional fields of Create.
type CreateRequestOptions struct {
	Type      string         `json:"type,omitempty"`
	CreatedBy Ref            `json:"created_by,omitempty"`
	Receiver  Ref            `json:"receiver,omitempty"`
	Topic     Ref            `json:"topic,omitempty"`
	ExpiresAt string         `json:"expires_at,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Submit    bool           `json:"submit,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Create creates a request.
func (c *Client) Create(ctx context.Context, title string, opts CreateRequestOptions) (Request, error) {
	body := map[string]any{
		"title":  title,
		"submit": opts.Submit,
	}
	if opts.Type != "" {
		body["type"] = opts.Type
	}
	if opts.CreatedBy != nil {
		body["created_by"] = opts.CreatedBy
	}
	if opts.Receiver != nil {
		body["receiver"] = opts.Receiver
	}
	if opts.Topic != nil {
		body["topic"] = opts.Topic
	}
	if opts.ExpiresAt != "" {
		body["expires_at"] = opts.ExpiresAt
	}
	if opts.Payload != nil {
		body["payload"] = opts.Payload
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "v0/requests", body, &resp)
	return resp, err
}

// Get fetches a request by id.
func (c *Client) Get(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "v0/requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// List returns requests matching the filters; empty filters match all.
func (c *Client) List(ctx context.Context, typeID, status, query string) ([]Request, error) {
	q := url.Values{}
	if typeID != "" {
		q.Set("type", typeID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if query != "" {
		q.Set("q", query)
	}
	endpoint := "v0/requests"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Request
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Execute runs a named action on a request.
func (c *Client) Execute(ctx context.Context, id, action string, payload map[string]any) (Request, error) {
	body := map[string]any{}
	if payload != nil {
		body["payload"] = payload
	}
	endpoint := fmt.Sprintf("v0/requests/%s/actions/%s", url.PathEscape(id), url.PathEscape(action))
	var resp Request
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Submit drives a request through the submit action.
func (c *Client) Submit(ctx context.Context, id string) (Request, error) {
	return c.Execute(ctx, id, "submit", nil)
}

// Accept drives a request through the accept action.
func (c *Client) Accept(ctx context.Context, id string, payload map[string]any) (Request, error) {
	return c.Execute(ctx, id, "accept", payload)
}

// Decline drives a request through the decline action.
func (c *Client) Decline(ctx context.Context, id string, payload map[string]any) (Request, error) {
	return c.Execute(ctx, id, "decline", payload)
}

// Cancel drives a request through the cancel action.
func (c *Client) Cancel(ctx context.Context, id string, payload map[string]any) (Request, error) {
	return c.Execute(ctx, id, "cancel", payload)
}

// Comment appends a comment event to the request's timeline.
func (c *Client) Comment(ctx context.Context, id, content string) (Event, error) {
	endpoint := fmt.Sprintf("v0/requests/%s/comments", url.PathEscape(id))
	var resp Event
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, &resp)
	return resp, err
}

// Timeline returns the request's events in creation order.
func (c *Client) Timeline(ctx context.Context, id string) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/requests/%s/timeline", url.PathEscape(id))
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Types returns the registered request types.
func (c *Client) Types(ctx context.Context) ([]RequestType, error) {
	var resp []RequestType
	err := c.do(ctx, http.MethodGet, "v0/request-types", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
