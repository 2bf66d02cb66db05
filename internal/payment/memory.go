package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory is a Store for tests and local runs.
type InMemory struct {
	mu     sync.Mutex
	orders map[string]*Order
	// Transitions counts successful state changes per order.
	transitions map[string]int
}

func NewInMemory() *InMemory {
	return &InMemory{orders: make(map[string]*Order), transitions: make(map[string]int)}
}

var _ Store = (*InMemory)(nil)

func (m *InMemory) InsertOrder(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.OrderID]; ok {
		return ErrDuplicateOrder
	}
	cp := *o
	m.orders[o.OrderID] = &cp
	return nil
}

func (m *InMemory) GetOrder(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *InMemory) TransitionOrder(_ context.Context, orderID string, to Status, paymentID, signature string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != StatusPending {
		return false, nil
	}
	o.Status, o.PaymentID, o.Signature, o.UpdatedAt = to, paymentID, signature, at
	m.transitions[orderID]++
	return true, nil
}

func (m *InMemory) ListOrders(_ context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *InMemory) CountPaidOrders(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == StatusPaid {
			n++
		}
	}
	return n, nil
}

// Transitions reports how many state changes orderID has undergone.
func (m *InMemory) Transitions(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions[orderID]
}
