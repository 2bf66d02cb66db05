package httpapi

import (
	"context"
	"errors"
	"net/http"

	"globalbangla.org/internal/audit"
	"globalbangla.org/internal/payment"
	"globalbangla.org/internal/stream"
)

type orderRequest struct {
	CompetitionID string `json:"competitionId" validate:"required"`
}

// Gateway widgets post razorpay_* keys; the short names are accepted too.
type verifyRequest struct {
	OrderID           string `json:"orderId"`
	PaymentID         string `json:"paymentId"`
	Signature         string `json:"signature"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (v verifyRequest) normalized() (orderID, paymentID, signature string) {
	orderID, paymentID, signature = v.OrderID, v.PaymentID, v.Signature
	if orderID == "" {
		orderID = v.RazorpayOrderID
	}
	if paymentID == "" {
		paymentID = v.RazorpayPaymentID
	}
	if signature == "" {
		signature = v.RazorpaySignature
	}
	return orderID, paymentID, signature
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !a.bind(w, r, &req) {
		return
	}
	checkout, err := a.svc.Payments.CreateOrder(r.Context(), principalOf(r).ID, req.CompetitionID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "payment.order.created", map[string]any{
		"order_id":       checkout.OrderID,
		"competition_id": req.CompetitionID,
		"amount":         checkout.Amount,
		"currency":       checkout.Currency,
	})
	writeJSON(w, http.StatusOK, checkout)
}

func (a *API) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !a.bind(w, r, &req) {
		return
	}
	orderID, paymentID, signature := req.normalized()
	res, err := a.svc.Payments.VerifyPayment(r.Context(), principalOf(r).ID, orderID, paymentID, signature)
	if err != nil {
		if errors.Is(err, payment.ErrVerificationFailed) {
			_ = audit.LogEvent(r.Context(), "payment.verify.failed", map[string]any{"order_id": orderID})
		}
		handleError(w, r, err)
		return
	}
	event := "payment.verify.paid"
	if res.Replayed {
		event = "payment.verify.replayed"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"order_id":   orderID,
		"payment_id": paymentID,
	})
	writeMessage(w, http.StatusOK, "Payment verified.")
}

// PaymentFeed publishes order state changes to the admin live feed. Replays
// change nothing and are not published.
func PaymentFeed(st *stream.Stream) payment.Notifier {
	return payment.NotifierFunc(func(_ context.Context, evt payment.Event) {
		if st == nil || evt.Replayed || evt.Order == nil {
			return
		}
		o := evt.Order
		st.Publish(stream.PaymentEvent{
			OrderID:       o.OrderID,
			StudentID:     o.StudentID,
			CompetitionID: o.CompetitionID,
			Amount:        o.Amount,
			Currency:      o.Currency,
			Status:        string(o.Status),
			Timestamp:     o.UpdatedAt,
		})
	})
}
