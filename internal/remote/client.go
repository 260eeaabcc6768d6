// Package remote is the HTTP client for the per-user cart and wishlist
// resources and the catalog lookups used to hydrate them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lherron/cartsync/internal/domain"
	"github.com/lherron/cartsync/internal/logging"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 8 * time.Second

	maxErrorBody = 4 << 10
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("remote: not found")

// ErrorDetail is one entry of the errors list in a response envelope.
type ErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Errors  []ErrorDetail
	Body    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Errors) > 0 {
		msg = e.Errors[0].Detail
	}
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// envelope is the {data, errors, message} wrapper the backend uses. Bodies
// without it are decoded as the payload itself.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Errors  []ErrorDetail   `json:"errors"`
	Message string          `json:"message"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

// Client talks to the cart/wishlist API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   logrus.FieldLogger
}

// New returns a client for the API rooted at opts.BaseURL
// (e.g. http://127.0.0.1:7272/api/v1).
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("remote: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q must be http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("remote: base url %q has no host", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:  base,
		token: opts.Token,
		http:  httpClient,
		log:   logging.OrDiscard(opts.Log),
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Health checks the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	var status string
	return c.do(ctx, http.MethodGet, "/health", nil, &status)
}

// FetchWishlist returns the product ids saved for userID.
func (c *Client) FetchWishlist(ctx context.Context, userID string) (domain.WishlistPayload, error) {
	var out domain.WishlistPayload
	if err := domain.ValidateUserID(userID); err != nil {
		return out, err
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "wishlist"), nil, &out); err != nil {
		return domain.WishlistPayload{}, err
	}
	if out.ProductIDs == nil {
		out.ProductIDs = []string{}
	}
	return out, nil
}

// ReplaceWishlist overwrites the wishlist saved for userID.
func (c *Client) ReplaceWishlist(ctx context.Context, userID string, payload domain.WishlistPayload) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	if payload.ProductIDs == nil {
		payload.ProductIDs = []string{}
	}
	return c.do(ctx, http.MethodPut, userPath(userID, "wishlist"), payload, nil)
}

// FetchCart returns the cart lines saved for userID.
func (c *Client) FetchCart(ctx context.Context, userID string) (domain.CartPayload, error) {
	var out domain.CartPayload
	if err := domain.ValidateUserID(userID); err != nil {
		return out, err
	}
	if err := c.do(ctx, http.MethodGet, userPath(userID, "cart"), nil, &out); err != nil {
		return domain.CartPayload{}, err
	}
	if out.Items == nil {
		out.Items = []domain.CartLine{}
	}
	return out, nil
}

// ReplaceCart overwrites the cart saved for userID.
func (c *Client) ReplaceCart(ctx context.Context, userID string, payload domain.CartPayload) error {
	if err := domain.ValidateUserID(userID); err != nil {
		return err
	}
	if payload.Items == nil {
		payload.Items = []domain.CartLine{}
	}
	return c.do(ctx, http.MethodPut, userPath(userID, "cart"), payload, nil)
}

// Product returns the catalog snapshot for id.
func (c *Client) Product(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	if strings.TrimSpace(id) == "" {
		return out, &domain.ValidationError{Field: "product_id", Reason: "is required"}
	}
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out)
	return out, err
}

func userPath(userID, resource string) string {
	return "/users/" + url.PathEscape(userID) + "/" + resource
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"elapsed":    time.Since(start).String(),
	}).Debug("remote request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = env.Message
			apiErr.Errors = env.Errors
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(raw), out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

// unwrap returns the data member of an envelope, or raw when the body is
// not enveloped.
func unwrap(raw []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	data, ok := fields["data"]
	if !ok || len(data) == 0 || string(data) == "null" {
		return raw
	}
	return data
}
