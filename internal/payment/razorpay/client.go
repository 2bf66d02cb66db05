// Package razorpay is a minimal client for the Razorpay Orders API.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"globalbangla.org/internal/payment"
)

const (
	DefaultBaseURL = "https://api.razorpay.com"
	pageSize       = 100
	maxPages       = 50
)

var ErrUnauthorized = errors.New("razorpay: authentication failed")

// APIError is a non-2xx gateway response.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("razorpay: status %d", e.Status)
}

// Client talks to the Orders API with HTTP basic auth.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

// Option configures Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New returns a client. Per-call deadlines come from the caller's context.
func New(keyID, keySecret string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	c := &Client{
		baseURL:   DefaultBaseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ payment.Gateway = (*Client)(nil)

type orderBody struct {
	ID        string  `json:"id,omitempty"`
	Amount    int64   `json:"amount"`
	Currency  string  `json:"currency"`
	Receipt   string  `json:"receipt,omitempty"`
	Status    string  `json:"status,omitempty"`
	Notes     noteMap `json:"notes,omitempty"`
	CreatedAt int64   `json:"created_at,omitempty"`
}

// noteMap decodes order notes. The gateway sends [] for orders without notes
// and may send non-string values.
type noteMap map[string]string

func (n *noteMap) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("null")) {
		*n = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(noteMap, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case nil:
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	*n = out
	return nil
}

func (o orderBody) toGateway() payment.GatewayOrder {
	g := payment.GatewayOrder{
		ID:       o.ID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Receipt:  o.Receipt,
		Status:   o.Status,
		Notes:    map[string]string(o.Notes),
	}
	if o.CreatedAt > 0 {
		g.CreatedAt = time.Unix(o.CreatedAt, 0).UTC()
	}
	return g
}

// CreateOrder calls POST /v1/orders.
func (c *Client) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	body, err := json.Marshal(orderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    noteMap(req.Notes),
	})
	if err != nil {
		return payment.GatewayOrder{}, err
	}
	var out orderBody
	if err := c.do(ctx, http.MethodPost, "/v1/orders", nil, body, &out); err != nil {
		return payment.GatewayOrder{}, err
	}
	return out.toGateway(), nil
}

type orderPage struct {
	Count int         `json:"count"`
	Items []orderBody `json:"items"`
}

// ListOrders pages through GET /v1/orders created at or after since.
func (c *Client) ListOrders(ctx context.Context, since time.Time) ([]payment.GatewayOrder, error) {
	var out []payment.GatewayOrder
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("from", strconv.FormatInt(since.Unix(), 10))
		q.Set("count", strconv.Itoa(pageSize))
		q.Set("skip", strconv.Itoa(page*pageSize))

		var p orderPage
		if err := c.do(ctx, http.MethodGet, "/v1/orders", q, nil, &p); err != nil {
			return nil, err
		}
		for _, item := range p.Items {
			out = append(out, item.toGateway())
		}
		if len(p.Items) < pageSize {
			return out, nil
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return mapError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("razorpay: decode response: %w", err)
	}
	return nil
}

func mapError(status int, data []byte) error {
	var env struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &env)
	apiErr := &APIError{Status: status, Code: env.Error.Code, Description: env.Error.Description}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrUnauthorized, apiErr)
	}
	return apiErr
}
