package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the backend's request/response surface. The event
// channel itself is owned by EventStream; Client only supplies the URL
// and transport for it.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EventURL returns the event-channel URL for a workspace directory
func (c *Client) EventURL(directory string) string {
	return c.baseURL + "/event?directory=" + url.QueryEscape(directory)
}

// GetSession fetches a single session's metadata
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.get(ctx, "/session/"+url.PathEscape(sessionID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetProject fetches a single project's metadata
func (c *Client) GetProject(ctx context.Context, projectID string) (*ProjectInfo, error) {
	var info ProjectInfo
	if err := c.get(ctx, "/project/"+url.PathEscape(projectID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListSessions lists all backend sessions
func (c *Client) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	var sessions []*SessionInfo
	if err := c.get(ctx, "/session", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListProjects lists all backend projects
func (c *Client) ListProjects(ctx context.Context) ([]*ProjectInfo, error) {
	var projects []*ProjectInfo
	if err := c.get(ctx, "/project", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetMessage fetches a single message by ID. This is the pull half of
// fallback reconciliation.
func (c *Client) GetMessage(ctx context.Context, sessionID, messageID string) (*Message, error) {
	path := "/session/" + url.PathEscape(sessionID) + "/message/" + url.PathEscape(messageID)
	var msg Message
	if err := c.get(ctx, path, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages fetches up to limit messages for a session, oldest first.
// A non-empty before cursor restricts the page to messages older than the
// message it names.
func (c *Client) ListMessages(ctx context.Context, sessionID string, limit int, before string) ([]*Message, error) {
	path := "/session/" + url.PathEscape(sessionID) + "/message?limit=" + strconv.Itoa(limit)
	if before != "" {
		path += "&before=" + url.QueryEscape(before)
	}
	var messages []*Message
	if err := c.get(ctx, path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// createMessageRequest is the body of POST /session/:id/message
type createMessageRequest struct {
	Parts []Part `json:"parts"`
}

// CreateMessage sends a new user message and returns the assistant's
// completed reply message.
func (c *Client) CreateMessage(ctx context.Context, sessionID string, parts []Part) (*Message, error) {
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	body, err := json.Marshal(createMessageRequest{Parts: parts})
	if err != nil {
		return nil, &RequestError{Method: http.MethodPost, Path: path, Err: err}
	}
	var reply Message
	if err := c.do(ctx, http.MethodPost, path, body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// AbortSession asks the backend to stop generating for a session
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/abort"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	return nil
}
