package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"globalbangla.org/internal/payment"
)

func TestCreateOrder(t *testing.T) {
	var got orderBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc123","amount":49900,"currency":"INR","receipt":"GB-1-1","status":"created","created_at":1767225600}`))
	}))
	defer srv.Close()

	c, err := New("rzp_test_key", "secret", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	order, err := c.CreateOrder(context.Background(), payment.OrderRequest{
		Amount:   49900,
		Currency: "INR",
		Receipt:  "GB-1-1",
		Notes:    map[string]string{"student_id": "s1"},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_abc123" || order.Amount != 49900 || order.CreatedAt.IsZero() {
		t.Fatalf("unexpected order %+v", order)
	}
	if got.Amount != 49900 || got.Notes["student_id"] != "s1" {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestCreateOrderUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer srv.Close()

	c, _ := New("k", "s", WithBaseURL(srv.URL))
	_, err := c.CreateOrder(context.Background(), payment.OrderRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateOrderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New("k", "s", WithBaseURL(srv.URL))
	_, err := c.CreateOrder(context.Background(), payment.OrderRequest{Amount: 100, Currency: "INR"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected APIError 502, got %v", err)
	}
}

func TestCreateOrderHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := New("k", "s", WithBaseURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.CreateOrder(ctx, payment.OrderRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("call did not respect deadline")
	}
}

func TestListOrdersPages(t *testing.T) {
	var skips []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := r.URL.Query().Get("skip")
		skips = append(skips, skip)
		if r.URL.Query().Get("from") != "1767225600" {
			t.Errorf("from = %q", r.URL.Query().Get("from"))
		}
		n := 0
		if skip == "0" {
			n = pageSize
		} else {
			n = 3
		}
		items := make([]orderBody, n)
		for i := range items {
			items[i] = orderBody{ID: "order_" + skip + "_" + strconv.Itoa(i), Amount: 100, Currency: "INR"}
		}
		_ = json.NewEncoder(w).Encode(orderPage{Count: n, Items: items})
	}))
	defer srv.Close()

	c, _ := New("k", "s", WithBaseURL(srv.URL))
	orders, err := c.ListOrders(context.Background(), time.Unix(1767225600, 0))
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != pageSize+3 {
		t.Fatalf("orders = %d", len(orders))
	}
	if len(skips) != 2 || skips[1] != strconv.Itoa(pageSize) {
		t.Fatalf("unexpected paging %v", skips)
	}
}

func TestNewRequiresKeys(t *testing.T) {
	if _, err := New("", "s"); err == nil {
		t.Fatal("expected error")
	}
}

func TestListOrdersAcceptsEmptyNotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":3,"items":[
			{"id":"order_legacy","amount":49900,"currency":"INR","notes":[],"created_at":1767225600},
			{"id":"order_new","amount":49900,"currency":"INR","notes":{"student_id":"s1","competition_id":"c1","attempt":2},"created_at":1767225700},
			{"id":"order_null","amount":100,"currency":"INR","notes":null}
		]}`))
	}))
	defer srv.Close()

	c, _ := New("k", "s", WithBaseURL(srv.URL))
	orders, err := c.ListOrders(context.Background(), time.Unix(1767225600, 0))
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("orders = %d", len(orders))
	}
	if len(orders[0].Notes) != 0 || len(orders[2].Notes) != 0 {
		t.Fatalf("expected empty notes, got %v and %v", orders[0].Notes, orders[2].Notes)
	}
	notes := orders[1].Notes
	if notes["student_id"] != "s1" || notes["competition_id"] != "c1" || notes["attempt"] != "2" {
		t.Fatalf("unexpected notes %v", notes)
	}
}
