// Package feed talks to the remote event feed: a black-box HTTP endpoint
// where GET returns all undelivered events and POST submits one event.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/peykchat/peyk/internal/models"
)

// Client is a feed API client.
type Client struct {
	BaseURL    string
	ClientID   string // instance id, sent as X-Peyk-Client
	HTTPClient *http.Client
}

// NewClient creates a new feed client. Request deadlines come from the
// caller's context, not the transport.
func NewClient(baseURL, clientID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		ClientID:   clientID,
		HTTPClient: &http.Client{},
	}
}

// Fetch retrieves all undelivered events. Anything other than a 200 with a
// JSON array body is an error; the sync loop treats it as an empty cycle.
func (c *Client) Fetch(ctx context.Context) ([]models.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Peyk-Client", c.ClientID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var events []models.Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("feed fetch: decode body: %w", err)
	}
	return events, nil
}

// Submit posts one event to the feed.
func (c *Client) Submit(ctx context.Context, sub models.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Peyk-Client", c.ClientID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed submit: unexpected status %d", resp.StatusCode)
	}
	return nil
}
