package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"globalbangla.org/internal/payment"
)

var _ payment.Store = (*Store)(nil)

func (s *Store) InsertOrder(ctx context.Context, o *payment.Order) error {
	_, err := s.db.ExecContext(ctx, `
		insert into payments (order_id, student_id, competition_id, amount, currency, receipt, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.OrderID, o.StudentID, o.CompetitionID, o.Amount, o.Currency, o.Receipt,
		string(o.Status), o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return payment.ErrDuplicateOrder
		}
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", payment.ErrOrderRejected, err)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*payment.Order, error) {
	var o payment.Order
	var status string
	err := s.db.QueryRowContext(ctx, `
		select order_id, student_id, competition_id, amount, currency, receipt, status,
			coalesce(payment_id, ''), coalesce(signature, ''), created_at, updated_at
		from payments where order_id = $1`, orderID).
		Scan(&o.OrderID, &o.StudentID, &o.CompetitionID, &o.Amount, &o.Currency, &o.Receipt, &status,
			&o.PaymentID, &o.Signature, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = payment.Status(status)
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return &o, nil
}

// TransitionOrder is a compare-and-swap on status: only a pending row changes.
func (s *Store) TransitionOrder(ctx context.Context, orderID string, to payment.Status, paymentID, signature string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update payments
		set status = $2, payment_id = $3, signature = $4, updated_at = $5
		where order_id = $1 and status = 'pending'`,
		orderID, string(to), paymentID, signature, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]*payment.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.order_id, p.student_id, p.competition_id, p.amount, p.currency, p.receipt, p.status,
			coalesce(p.payment_id, ''), p.created_at, p.updated_at, u.name, coalesce(c.title, '')
		from payments p
		join users u on u.id = p.student_id
		left join competitions c on c.id = p.competition_id
		order by p.created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*payment.Order
	for rows.Next() {
		var o payment.Order
		var status string
		if err := rows.Scan(&o.OrderID, &o.StudentID, &o.CompetitionID, &o.Amount, &o.Currency, &o.Receipt,
			&status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt, &o.StudentName, &o.CompetitionTitle); err != nil {
			return nil, err
		}
		o.Status = payment.Status(status)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *Store) CountPaidOrders(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from payments where status = 'paid'`).Scan(&n)
	return n, err
}
