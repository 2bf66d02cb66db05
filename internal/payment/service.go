package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"globalbangla.org/internal/contest"
	"globalbangla.org/internal/obs"
)

const (
	defaultCurrency       = "INR"
	defaultGatewayTimeout = 10 * time.Second

	noteStudentID     = "student_id"
	noteCompetitionID = "competition_id"
)

var hundred = decimal.NewFromInt(100)

// Catalog resolves competitions for checkout.
type Catalog interface {
	GetCompetition(ctx context.Context, id string) (*contest.Competition, error)
}

// Checkout is returned to the client to open the gateway's payment widget.
type Checkout struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Result is the outcome of a successful verification.
type Result struct {
	Order    *Order
	Replayed bool
}

// ReconcileReport summarises a reconciliation sweep.
type ReconcileReport struct {
	Scanned  int      `json:"scanned"`
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Orphans  []string `json:"orphans,omitempty"`
}

// Service runs the order lifecycle.
type Service struct {
	store    Store
	gateway  Gateway
	catalog  Catalog
	secret   []byte
	currency string
	timeout  time.Duration
	notifier Notifier
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

func WithCurrency(c string) Option {
	return func(s *Service) {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			s.currency = c
		}
	}
}

// WithGatewayTimeout bounds every gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the lifecycle. secret is the gateway key secret used for
// signature verification.
func NewService(store Store, gateway Gateway, catalog Catalog, secret []byte, opts ...Option) *Service {
	s := &Service{
		store:    store,
		gateway:  gateway,
		catalog:  catalog,
		secret:   append([]byte(nil), secret...),
		currency: defaultCurrency,
		timeout:  defaultGatewayTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinorUnits converts a fee to minor units, rounding half away from zero.
func MinorUnits(fee decimal.Decimal) int64 {
	return fee.Mul(hundred).Round(0).IntPart()
}

// Sign returns the expected signature for orderID and paymentID.
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateOrder opens a gateway order for a paid competition and records it as
// pending.
func (s *Service) CreateOrder(ctx context.Context, studentID, competitionID string) (Checkout, error) {
	competitionID = strings.TrimSpace(competitionID)
	if studentID == "" || competitionID == "" {
		return Checkout{}, ErrCompetitionNotFound
	}
	comp, err := s.catalog.GetCompetition(ctx, competitionID)
	if err != nil {
		if errors.Is(err, contest.ErrNotFound) {
			obs.ObserveOrder("not_found")
			return Checkout{}, ErrCompetitionNotFound
		}
		return Checkout{}, fmt.Errorf("load competition: %w", err)
	}
	if !comp.IsPaid {
		obs.ObserveOrder("free")
		return Checkout{}, ErrCompetitionNotPaid
	}
	amount := MinorUnits(comp.Fee)
	if amount <= 0 {
		obs.ObserveOrder("free")
		return Checkout{}, ErrCompetitionNotPaid
	}

	now := s.now().UTC()
	req := OrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  fmt.Sprintf("GB-%s-%d", comp.ID, now.UnixMilli()),
		Notes: map[string]string{
			noteStudentID:     studentID,
			noteCompetitionID: comp.ID,
		},
	}
	gwOrder, err := s.createGatewayOrder(ctx, req)
	if err != nil {
		obs.ObserveOrder("gateway_error")
		obs.Error("payment_gateway_failed", map[string]any{
			"competition_id": comp.ID,
			"student_id":     studentID,
			"error":          err,
		})
		return Checkout{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	currency := gwOrder.Currency
	if currency == "" {
		currency = s.currency
	}
	order := &Order{
		OrderID:       gwOrder.ID,
		StudentID:     studentID,
		CompetitionID: comp.ID,
		Amount:        amount,
		Currency:      currency,
		Receipt:       req.Receipt,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertOrder(ctx, order); err != nil {
		obs.IncOrphanOrder()
		obs.ObserveOrder("orphan")
		obs.Error("payment_orphan_order", map[string]any{
			"order_id":       gwOrder.ID,
			"competition_id": comp.ID,
			"student_id":     studentID,
			"error":          err,
		})
		return Checkout{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	obs.ObserveOrder("created")
	s.notify(ctx, Event{Order: order})
	return Checkout{OrderID: order.OrderID, Amount: amount, Currency: currency, Receipt: order.Receipt}, nil
}

func (s *Service) createGatewayOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	o, err := s.gateway.CreateOrder(ctx, req)
	obs.ObserveGateway("create_order", time.Since(start), err)
	if err == nil && strings.TrimSpace(o.ID) == "" {
		err = errors.New("gateway returned empty order id")
	}
	return o, err
}

// VerifyPayment checks the gateway signature for an order owned by studentID
// and records the outcome exactly once.
func (s *Service) VerifyPayment(ctx context.Context, studentID, orderID, paymentID, signature string) (Result, error) {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		obs.ObserveVerification("incomplete")
		return Result{}, ErrIncompleteDetails
	}

	order, err := s.ownedOrder(ctx, studentID, orderID)
	if err != nil {
		return Result{}, err
	}
	valid := s.signatureValid(orderID, paymentID, signature)

	if order.Status == StatusPending {
		to := StatusFailed
		if valid {
			to = StatusPaid
		}
		at := s.now().UTC()
		swapped, err := s.store.TransitionOrder(ctx, orderID, to, paymentID, signature, at)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if swapped {
			order.Status, order.PaymentID, order.Signature, order.UpdatedAt = to, paymentID, signature, at
			obs.ObserveVerification(string(to))
			s.notify(ctx, Event{Order: order})
			if to == StatusFailed {
				return Result{}, ErrVerificationFailed
			}
			return Result{Order: order}, nil
		}
		// Another request transitioned the order first.
		if order, err = s.ownedOrder(ctx, studentID, orderID); err != nil {
			return Result{}, err
		}
	}
	return s.settled(ctx, order, paymentID, signature, valid)
}

// settled applies the rules for an order that is no longer pending.
func (s *Service) settled(ctx context.Context, order *Order, paymentID, signature string, valid bool) (Result, error) {
	if order.Status == StatusPaid && valid &&
		order.PaymentID == paymentID &&
		hmac.Equal([]byte(order.Signature), []byte(signature)) {
		obs.ObserveVerification("replay")
		s.notify(ctx, Event{Order: order, Replayed: true})
		return Result{Order: order, Replayed: true}, nil
	}
	if order.Status == StatusFailed && !valid &&
		order.PaymentID == paymentID &&
		hmac.Equal([]byte(order.Signature), []byte(signature)) {
		obs.ObserveVerification("replay_failed")
		return Result{}, ErrVerificationFailed
	}
	obs.ObserveVerification("invalid_state")
	return Result{}, ErrInvalidState
}

func (s *Service) ownedOrder(ctx context.Context, studentID, orderID string) (*Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			obs.ObserveVerification("not_found")
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order.StudentID != studentID {
		obs.ObserveVerification("not_found")
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) signatureValid(orderID, paymentID, signature string) bool {
	expected := Sign(s.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Orders lists all orders for the admin view.
func (s *Service) Orders(ctx context.Context) ([]*Order, error) {
	return s.store.ListOrders(ctx)
}

// CountPaid returns the number of paid orders.
func (s *Service) CountPaid(ctx context.Context) (int, error) {
	return s.store.CountPaidOrders(ctx)
}

// Reconcile inserts pending rows for gateway orders created since since that
// have no local record, repairing checkouts whose insert failed.
func (s *Service) Reconcile(ctx context.Context, since time.Time) (ReconcileReport, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	orders, err := s.gateway.ListOrders(listCtx, since)
	cancel()
	obs.ObserveGateway("list_orders", time.Since(start), err)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var report ReconcileReport
	for _, g := range orders {
		report.Scanned++
		studentID, competitionID := g.Notes[noteStudentID], g.Notes[noteCompetitionID]
		if g.ID == "" || studentID == "" || competitionID == "" || g.Amount <= 0 {
			report.Skipped++
			continue
		}
		_, err := s.store.GetOrder(ctx, g.ID)
		if err == nil {
			report.Skipped++
			continue
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return report, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		created := g.CreatedAt.UTC()
		if created.IsZero() {
			created = s.now().UTC()
		}
		currency := g.Currency
		if currency == "" {
			currency = s.currency
		}
		order := &Order{
			OrderID:       g.ID,
			StudentID:     studentID,
			CompetitionID: competitionID,
			Amount:        g.Amount,
			Currency:      currency,
			Receipt:       g.Receipt,
			Status:        StatusPending,
			CreatedAt:     created,
			UpdatedAt:     s.now().UTC(),
		}
		if err := s.store.InsertOrder(ctx, order); err != nil {
			switch {
			case errors.Is(err, ErrDuplicateOrder):
				report.Skipped++
				continue
			case errors.Is(err, ErrOrderRejected):
				report.Skipped++
				obs.Warn("payment_orphan_rejected", map[string]any{"order_id": g.ID, "error": err})
				continue
			}
			return report, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		report.Inserted++
		report.Orphans = append(report.Orphans, g.ID)
		obs.Info("payment_orphan_repaired", map[string]any{"order_id": g.ID})
	}
	return report, nil
}

func (s *Service) notify(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	cp := *evt.Order
	evt.Order = &cp
	s.notifier.OrderChanged(ctx, evt)
}
