package boomfi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
)

const defaultAPIBaseURL = "https://mgmt-api.boomfi.xyz"

// Client talks to the BoomFi management API. Responses are passed through to
// the caller as raw JSON; the dashboard frontend renders them directly.
type Client struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from BOOMFI_* environment variables.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("BOOMFI_API_KEY", "")),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("BOOMFI_API_URL", defaultAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListCustomers fetches all customers known to BoomFi.
func (c *Client) ListCustomers(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/v1/customers", nil)
}

// GetCustomer fetches one customer by BoomFi customer id.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (json.RawMessage, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}
	return c.get(ctx, "/v1/customers/"+url.PathEscape(customerID), nil)
}

// GetCustomerSubscriptions fetches the subscriptions of one customer.
func (c *Client) GetCustomerSubscriptions(ctx context.Context, customerID string) (json.RawMessage, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}
	return c.get(ctx, "/v1/subscriptions", url.Values{"customer_id": {customerID}})
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if c.APIKey == "" {
		return nil, errors.New("BOOMFI_API_KEY is not configured")
	}

	u := c.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("boomfi api request failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return json.RawMessage(body), nil
}
