// Package directory talks to the document/participant service, the
// authority on which documents a user belongs to. Presence never caches
// its answers across connections.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/syncdocs/presence/internal/core"
	"github.com/syncdocs/presence/internal/domain"
)

var ErrBaseURLEmpty = errors.New("directory: base url required")

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLEmpty
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}, nil
}

var _ core.Directory = (*Client)(nil)

// IsParticipant asks whether the user holds any role on the document.
// 204 means yes, 404 means no; everything else is a transport failure.
func (c *Client) IsParticipant(ctx context.Context, documentID int64, uid domain.UserID) (bool, error) {
	url := fmt.Sprintf("%s/internal/documents/%d/participants/%d", c.base, documentID, uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("directory: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("directory: is participant: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("directory: is participant: unexpected status %d", resp.StatusCode)
	}
}

// TopicsFor returns the authoritative broadcast topics for the user,
// consumed by membership rehydration on every (re)connect.
func (c *Client) TopicsFor(ctx context.Context, uid domain.UserID) ([]string, error) {
	url := fmt.Sprintf("%s/internal/users/%d/topics", c.base, uid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: topics for: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: topics for: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Topics []string `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("directory: decode topics: %w", err)
	}
	return body.Topics, nil
}
