package incomelimits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Reader fetches one year's limits for a county.
type Reader interface {
	FetchLimits(ctx context.Context, state, county string, year int) (*LimitSet, error)
}

// Client talks to the income-limits service over HTTP JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) FetchLimits(ctx context.Context, state, county string, year int) (*LimitSet, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("county", county)
	q.Set("year", strconv.Itoa(year))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/limits?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build limits request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("income limits service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("income limits service returned %d", resp.StatusCode)
	}

	var limits LimitSet
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return nil, fmt.Errorf("decode limits response: %w", err)
	}
	return &limits, nil
}
