package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"globalbangla.org/internal/contest"
)

const testSecret = "rzp_test_secret"

type fakeGateway struct {
	mu      sync.Mutex
	nextID  string
	err     error
	delay   time.Duration
	calls   int
	last    OrderRequest
	listed  []GatewayOrder
	listErr error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	g.mu.Lock()
	g.calls++
	g.last = req
	id, err, delay := g.nextID, g.err, g.delay
	g.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return GatewayOrder{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return GatewayOrder{}, err
	}
	return GatewayOrder{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Notes: req.Notes}, nil
}

func (g *fakeGateway) ListOrders(context.Context, time.Time) ([]GatewayOrder, error) {
	return g.listed, g.listErr
}

type failingStore struct {
	*InMemory
	insertErr error
	// rejected fails inserts for these order ids only.
	rejected map[string]error
}

func (f *failingStore) InsertOrder(ctx context.Context, o *Order) error {
	if err, ok := f.rejected[o.OrderID]; ok {
		return err
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.InMemory.InsertOrder(ctx, o)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) OrderChanged(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type ServiceSuite struct {
	suite.Suite
	catalog  *contest.InMemory
	store    *InMemory
	gateway  *fakeGateway
	notifier *recordingNotifier
	svc      *Service
	now      time.Time
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.catalog = contest.NewInMemory(nil)
	s.store = NewInMemory()
	s.gateway = &fakeGateway{nextID: "order_abc123"}
	s.notifier = &recordingNotifier{}
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.svc = NewService(s.store, s.gateway, s.catalog, []byte(testSecret),
		WithNotifier(s.notifier),
		WithClock(func() time.Time { return s.now }))

	s.addCompetition("comp-paid", true, "499.00")
	s.addCompetition("comp-free", false, "0")
}

func (s *ServiceSuite) addCompetition(id string, paid bool, fee string) {
	s.Require().NoError(s.catalog.InsertCompetition(s.ctx, &contest.Competition{
		ID:     id,
		Title:  id,
		IsPaid: paid,
		Fee:    decimal.RequireFromString(fee),
		Status: contest.StatusActive,
	}))
}

func (s *ServiceSuite) checkout() Checkout {
	co, err := s.svc.CreateOrder(s.ctx, "stu-1", "comp-paid")
	s.Require().NoError(err)
	return co
}

func (s *ServiceSuite) TestCreateOrderPersistsPending() {
	co := s.checkout()
	s.Equal("order_abc123", co.OrderID)
	s.Equal(int64(49900), co.Amount)
	s.Equal("INR", co.Currency)
	s.Equal("GB-comp-paid-1775044800000", co.Receipt)

	order, err := s.store.GetOrder(s.ctx, "order_abc123")
	s.Require().NoError(err)
	s.Equal(StatusPending, order.Status)
	s.Equal("stu-1", order.StudentID)
	s.Equal(int64(49900), order.Amount)

	s.Equal("stu-1", s.gateway.last.Notes["student_id"])
	s.Equal("comp-paid", s.gateway.last.Notes["competition_id"])
}

func (s *ServiceSuite) TestCreateOrderFreeCompetition() {
	_, err := s.svc.CreateOrder(s.ctx, "stu-1", "comp-free")
	s.True(errors.Is(err, ErrCompetitionNotPaid))
	s.Equal(0, s.gateway.calls)
	orders, _ := s.store.ListOrders(s.ctx)
	s.Empty(orders)
}

func (s *ServiceSuite) TestCreateOrderUnknownCompetition() {
	_, err := s.svc.CreateOrder(s.ctx, "stu-1", "nope")
	s.True(errors.Is(err, ErrCompetitionNotFound))
	s.Equal(0, s.gateway.calls)
}

func (s *ServiceSuite) TestCreateOrderGatewayFailure() {
	s.gateway.err = errors.New("connection refused")
	_, err := s.svc.CreateOrder(s.ctx, "stu-1", "comp-paid")
	s.True(errors.Is(err, ErrGatewayUnavailable))
	orders, _ := s.store.ListOrders(s.ctx)
	s.Empty(orders)
}

func (s *ServiceSuite) TestCreateOrderGatewayTimeout() {
	s.gateway.delay = time.Second
	svc := NewService(s.store, s.gateway, s.catalog, []byte(testSecret), WithGatewayTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := svc.CreateOrder(s.ctx, "stu-1", "comp-paid")
	s.True(errors.Is(err, ErrGatewayUnavailable))
	s.Less(time.Since(start), 500*time.Millisecond)
}

func (s *ServiceSuite) TestCreateOrderOrphanOnStoreFailure() {
	store := &failingStore{InMemory: NewInMemory(), insertErr: errors.New("db down")}
	svc := NewService(store, s.gateway, s.catalog, []byte(testSecret))
	_, err := svc.CreateOrder(s.ctx, "stu-1", "comp-paid")
	s.True(errors.Is(err, ErrStoreUnavailable))
	s.Equal(1, s.gateway.calls)
}

func (s *ServiceSuite) TestMinorUnitsRounding() {
	cases := map[string]int64{
		"499.00": 49900,
		"499":    49900,
		"0.005":  1,
		"10.994": 1099,
		"10.995": 1100,
	}
	for fee, want := range cases {
		s.Equal(want, MinorUnits(decimal.RequireFromString(fee)), fee)
	}
}

func (s *ServiceSuite) TestVerifyMatchingSignature() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")

	res, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)
	s.False(res.Replayed)
	s.Equal(StatusPaid, res.Order.Status)

	order, _ := s.store.GetOrder(s.ctx, "order_abc123")
	s.Equal(StatusPaid, order.Status)
	s.Equal("pay_xyz", order.PaymentID)
	s.Equal(sig, order.Signature)
	s.Equal(1, s.store.Transitions("order_abc123"))
}

func (s *ServiceSuite) TestVerifyAcceptsUppercaseHex() {
	s.checkout()
	sig := strings.ToUpper(Sign([]byte(testSecret), "order_abc123", "pay_xyz"))
	_, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestVerifyMismatchMarksFailed() {
	s.checkout()
	_, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", "deadbeef")
	s.True(errors.Is(err, ErrVerificationFailed))

	order, _ := s.store.GetOrder(s.ctx, "order_abc123")
	s.Equal(StatusFailed, order.Status)

	_, err = s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", "deadbeef")
	s.True(errors.Is(err, ErrVerificationFailed))

	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	_, err = s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.True(errors.Is(err, ErrInvalidState))
	s.Equal(1, s.store.Transitions("order_abc123"))
}

func (s *ServiceSuite) TestVerifyReplayReturnsPriorSuccess() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	first, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)

	second, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.Order.Status, second.Order.Status)
	s.Equal(first.Order.PaymentID, second.Order.PaymentID)
	s.Equal(1, s.store.Transitions("order_abc123"))
}

func (s *ServiceSuite) TestVerifyPaidOrderWithDifferentPayment() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	_, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)

	_, err = s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_other", "bad")
	s.True(errors.Is(err, ErrInvalidState))
	order, _ := s.store.GetOrder(s.ctx, "order_abc123")
	s.Equal(StatusPaid, order.Status)
	s.Equal("pay_xyz", order.PaymentID)
}

func (s *ServiceSuite) TestVerifyIncompleteDetails() {
	_, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "", "sig")
	s.True(errors.Is(err, ErrIncompleteDetails))
}

func (s *ServiceSuite) TestVerifyOtherStudentsOrder() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	_, err := s.svc.VerifyPayment(s.ctx, "stu-2", "order_abc123", "pay_xyz", sig)
	s.True(errors.Is(err, ErrOrderNotFound))
	order, _ := s.store.GetOrder(s.ctx, "order_abc123")
	s.Equal(StatusPending, order.Status)
}

func (s *ServiceSuite) TestVerifyConcurrentSingleTransition() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")

	var wg sync.WaitGroup
	var ok, replayed int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
			if err == nil {
				atomic.AddInt32(&ok, 1)
				if res.Replayed {
					atomic.AddInt32(&replayed, 1)
				}
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(16), ok)
	s.Equal(int32(15), replayed)
	s.Equal(1, s.store.Transitions("order_abc123"))
}

func (s *ServiceSuite) TestNotifierReceivesTransitions() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	_, err := s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	s.Require().NoError(err)

	s.Require().Len(s.notifier.events, 2)
	s.Equal(StatusPending, s.notifier.events[0].Order.Status)
	s.Equal(StatusPaid, s.notifier.events[1].Order.Status)
}

func (s *ServiceSuite) TestReconcileInsertsOrphans() {
	s.checkout()
	s.gateway.listed = []GatewayOrder{
		{ID: "order_abc123", Amount: 49900, Notes: map[string]string{"student_id": "stu-1", "competition_id": "comp-paid"}},
		{ID: "order_orphan", Amount: 49900, Currency: "INR", Notes: map[string]string{"student_id": "stu-2", "competition_id": "comp-paid"}},
		{ID: "order_foreign", Amount: 100},
	}
	report, err := s.svc.Reconcile(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(3, report.Scanned)
	s.Equal(1, report.Inserted)
	s.Equal(2, report.Skipped)
	s.Equal([]string{"order_orphan"}, report.Orphans)

	order, err := s.store.GetOrder(s.ctx, "order_orphan")
	s.Require().NoError(err)
	s.Equal(StatusPending, order.Status)
	s.Equal("stu-2", order.StudentID)

	again, err := s.svc.Reconcile(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(0, again.Inserted)
}

func (s *ServiceSuite) TestReconcileSkipsRejectedRowsAndContinues() {
	store := &failingStore{InMemory: NewInMemory(), rejected: map[string]error{
		"order_gone_student": fmt.Errorf("%w: foreign key violation", ErrOrderRejected),
	}}
	svc := NewService(store, s.gateway, s.catalog, []byte(testSecret), WithClock(func() time.Time { return s.now }))
	s.gateway.listed = []GatewayOrder{
		{ID: "order_gone_student", Amount: 49900, Notes: map[string]string{"student_id": "deleted", "competition_id": "comp-paid"}},
		{ID: "order_valid", Amount: 49900, Notes: map[string]string{"student_id": "stu-2", "competition_id": "comp-paid"}},
	}

	report, err := svc.Reconcile(s.ctx, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(2, report.Scanned)
	s.Equal(1, report.Inserted)
	s.Equal(1, report.Skipped)
	s.Equal([]string{"order_valid"}, report.Orphans)

	_, err = store.GetOrder(s.ctx, "order_valid")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestReconcileStopsOnStoreFailure() {
	store := &failingStore{InMemory: NewInMemory(), insertErr: errors.New("connection reset")}
	svc := NewService(store, s.gateway, s.catalog, []byte(testSecret), WithClock(func() time.Time { return s.now }))
	s.gateway.listed = []GatewayOrder{
		{ID: "order_valid", Amount: 49900, Notes: map[string]string{"student_id": "stu-2", "competition_id": "comp-paid"}},
	}
	_, err := svc.Reconcile(s.ctx, s.now.Add(-time.Hour))
	s.True(errors.Is(err, ErrStoreUnavailable))
}

func (s *ServiceSuite) TestReconcileGatewayError() {
	s.gateway.listErr = errors.New("timeout")
	_, err := s.svc.Reconcile(s.ctx, s.now)
	s.True(errors.Is(err, ErrGatewayUnavailable))
}

func (s *ServiceSuite) TestCountPaid() {
	s.checkout()
	sig := Sign([]byte(testSecret), "order_abc123", "pay_xyz")
	_, _ = s.svc.VerifyPayment(s.ctx, "stu-1", "order_abc123", "pay_xyz", sig)
	n, err := s.svc.CountPaid(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
