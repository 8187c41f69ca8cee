// Package cartsync mirrors a shopper's cart in a client process and keeps it
// consistent with the storefront API under optimistic updates.
package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"storefront/internal/domain"
)

// APIError is a non-2xx response decoded from the storefront envelope.
type APIError struct {
	Status    int
	Message   string
	Requested *int
	Available *int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Requested *int            `json:"requested"`
	Available *int            `json:"available"`
}

// Client is a JSON client for the cart endpoints. Its cookie jar keeps the
// anonymous session between calls.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
}

type ClientOption func(*Client)

func WithBearer(token string) ClientOption {
	return func(c *Client) { c.bearer = token }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Cart(ctx context.Context) ([]domain.CartItem, error) {
	var items []domain.CartItem
	if err := c.call(ctx, http.MethodGet, "/cart", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

func (c *Client) Add(ctx context.Context, productID string, quantity int) (*domain.CartItem, error) {
	var item *domain.CartItem
	body := map[string]interface{}{"productId": productID, "quantity": quantity}
	if err := c.call(ctx, http.MethodPost, "/cart", body, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// SetQuantity returns nil when the server deleted the line.
func (c *Client) SetQuantity(ctx context.Context, productID string, quantity int) (*domain.CartItem, error) {
	var item *domain.CartItem
	body := map[string]interface{}{"productId": productID, "quantity": quantity}
	if err := c.call(ctx, http.MethodPut, "/cart", body, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) Remove(ctx context.Context, productID string) error {
	return c.call(ctx, http.MethodDelete, "/cart?productId="+url.QueryEscape(productID), nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode cart response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error, Requested: env.Requested, Available: env.Available}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
