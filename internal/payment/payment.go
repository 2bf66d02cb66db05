// Package payment implements the checkout and verification lifecycle of paid
// competition entries.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCompetitionNotFound = errors.New("payment: competition not found")
	ErrCompetitionNotPaid  = errors.New("payment: competition is free")
	ErrGatewayUnavailable  = errors.New("payment: gateway unavailable")
	ErrStoreUnavailable    = errors.New("payment: store unavailable")
	ErrOrderNotFound       = errors.New("payment: order not found")
	ErrIncompleteDetails   = errors.New("payment: incomplete payment details")
	ErrVerificationFailed  = errors.New("payment: verification failed")
	ErrInvalidState        = errors.New("payment: order already processed")
	ErrDuplicateOrder      = errors.New("payment: order already recorded")
	ErrOrderRejected       = errors.New("payment: order rejected by store")
)

// Status is the lifecycle state of an order. The only transitions are
// pending -> paid and pending -> failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Order is the local record of a gateway order.
type Order struct {
	OrderID       string    `json:"order_id"`
	StudentID     string    `json:"student_id"`
	CompetitionID string    `json:"competition_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Receipt       string    `json:"receipt"`
	Status        Status    `json:"status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Signature     string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	StudentName      string `json:"name,omitempty"`
	CompetitionTitle string `json:"competition,omitempty"`
}

// Store persists orders.
type Store interface {
	// InsertOrder records a new pending order; a duplicate order id yields ErrDuplicateOrder.
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// TransitionOrder moves a pending order to status and reports whether this
	// call performed the transition.
	TransitionOrder(ctx context.Context, orderID string, to Status, paymentID, signature string, at time.Time) (bool, error)
	// ListOrders returns orders newest first with joined display fields.
	ListOrders(ctx context.Context) ([]*Order, error)
	CountPaidOrders(ctx context.Context) (int, error)
}

// OrderRequest is sent to the gateway on checkout.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of an order.
type GatewayOrder struct {
	ID        string
	Amount    int64
	Currency  string
	Receipt   string
	Status    string
	Notes     map[string]string
	CreatedAt time.Time
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	ListOrders(ctx context.Context, since time.Time) ([]GatewayOrder, error)
}

// Event is emitted after every order state change.
type Event struct {
	Order *Order
	// Replayed is set when verification repeated an earlier success.
	Replayed bool
}

// Notifier receives order events. Implementations must not block.
type Notifier interface {
	OrderChanged(ctx context.Context, evt Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt Event)

func (f NotifierFunc) OrderChanged(ctx context.Context, evt Event) { f(ctx, evt) }
