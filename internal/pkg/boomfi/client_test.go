package boomfi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		APIKey:     "test-key",
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	}
}

func TestListCustomers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"items":[{"id":"bcus_1"}]}`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv).ListCustomers(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[{"id":"bcus_1"}]}`, string(raw))
}

func TestGetCustomerSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "bcus_1", r.URL.Query().Get("customer_id"))
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv).GetCustomerSubscriptions(context.Background(), "bcus_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(raw))
}

func TestGetCustomerRequiresID(t *testing.T) {
	c := &Client{APIKey: "k", APIBaseURL: "http://example.invalid", HTTPClient: http.DefaultClient}
	_, err := c.GetCustomer(context.Background(), " ")
	assert.Error(t, err)
}

func TestErrorStatusIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"bad key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListCustomers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=403")
}

func TestMissingAPIKey(t *testing.T) {
	c := &Client{APIBaseURL: "http://example.invalid", HTTPClient: http.DefaultClient}
	_, err := c.ListCustomers(context.Background())
	assert.Error(t, err)
}
