package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stoyanka/internal/database"
	"stoyanka/internal/models"
)

// Client is the HTTP client counterpart of HTTPServer. It implements
// domain.Fetcher and is what a reconcile engine embedded in another
// process talks through.
type Client struct {
	baseURL  string
	apiKey   string
	apiExtra string
	http     *http.Client
}

func NewClient(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		apiExtra: apiExtra,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) FetchReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := c.doGet(ctx, "/api/v1/reservations/"+url.PathEscape(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) FetchSpace(ctx context.Context, id string) (*models.ParkingSpace, error) {
	var s models.ParkingSpace
	if err := c.doGet(ctx, "/api/v1/spaces/"+url.PathEscape(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return database.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
