package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lazypower/topicgraph/internal/topic"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 10 * time.Second
)

// Client is a Store backed by a topicgraph server's document API.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a client for serverURL, or the default local server
// when serverURL is empty.
func NewClient(serverURL string) *Client {
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// GetTopic fetches /api/topics/{id}.
func (c *Client) GetTopic(ctx context.Context, id string) (*topic.Topic, error) {
	var t topic.Topic
	if err := c.get(ctx, "/api/topics/"+url.PathEscape(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ChildTopics fetches /api/topics?parent=X&type=...
func (c *Client) ChildTopics(ctx context.Context, parentID string, types []string) ([]topic.Topic, error) {
	q := url.Values{"parent": {parentID}}
	for _, ty := range types {
		q.Add("type", ty)
	}
	var resp struct {
		Topics []topic.Topic `json:"topics"`
	}
	if err := c.get(ctx, "/api/topics?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// get issues a GET and decodes the JSON body into out. 404 maps to
// topic.ErrNotFound; transport errors and 5xx are transient.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return topic.Transient(fmt.Errorf("GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return topic.Transient(fmt.Errorf("read response %s: %w", path, err))
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return topic.ErrNotFound
	case resp.StatusCode >= 500:
		return topic.Transient(fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, data))
	case resp.StatusCode >= 400:
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// isNotFound reports whether err means the topic does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, topic.ErrNotFound)
}
