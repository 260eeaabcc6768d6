package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/api/v1/", Token: token})
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://", "://bad"} {
		_, err := New(Options{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestFetchWishlist_UnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/users/u1/wishlist", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":{"productIds":["a","b"]},"errors":null,"message":null}`)
	}, "secret")

	got, err := c.FetchWishlist(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.ProductIDs)
}

func TestFetchCart_BareBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"items":[{"productId":"P1","quantity":3,"variantKey":"size:M"}]}`)
	}, "")

	got, err := c.FetchCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: "P1", Quantity: 3, VariantKey: "size:M"}}, got.Items)
}

func TestFetch_EmptyCollectionsAreNonNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	}, "")

	cart, err := c.FetchCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	wl, err := c.FetchWishlist(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, wl.ProductIDs)
}

func TestReplaceCart_SendsFullPayload(t *testing.T) {
	var body domain.CartPayload
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/users/u%201/cart", r.URL.EscapedPath())
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}, "")

	err := c.ReplaceCart(context.Background(), "u 1", domain.CartPayload{
		Items: []domain.CartLine{{ProductID: "P1", Quantity: 3, VariantKey: "size:M"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: "P1", Quantity: 3, VariantKey: "size:M"}}, body.Items)
}

func TestReplaceWishlist_NilBecomesEmptyArray(t *testing.T) {
	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusOK)
	}, "")

	require.NoError(t, c.ReplaceWishlist(context.Background(), "u1", domain.WishlistPayload{}))
	assert.JSONEq(t, `[]`, string(raw["productIds"]))
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"data":null,"errors":[{"code":"validation_error","detail":"quantity must be positive"}]}`)
	}, "")

	err := c.ReplaceCart(context.Background(), "u1", domain.CartPayload{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "validation_error", apiErr.Errors[0].Code)
	assert.Contains(t, err.Error(), "quantity must be positive")
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestProduct_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"data":null,"errors":[{"code":"not_found","detail":"Product 'missing' not found."}]}`)
	}, "")

	_, err := c.Product(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestProduct_Decodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":"P1","name":"Shirt","price":19.99,"category":{"id":"c","name":"Tops","slug":"tops"}}}`)
	}, "")

	p, err := c.Product(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "Shirt", p.Name)
	assert.Equal(t, "tops", p.Category.Slug)
	assert.InDelta(t, 19.99, p.Price, 0.0001)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":"OK"}`)
	}, "")
	require.NoError(t, c.Health(context.Background()))
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	_, err = c.FetchCart(context.Background(), "u1")
	assert.Error(t, err)
}

func TestInvalidUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}, "")
	_, err := c.FetchCart(context.Background(), "")
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
}
