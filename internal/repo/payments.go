package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, account_id, promotion_id, amount, reference, status, created_at, completed_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AccountID, &p.PromotionID, &p.Amount, &p.Reference, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InsertPayment stores a new pending payment for a paid promotion.
func (r *Repository) InsertPayment(ctx context.Context, pay Payment) (*Payment, error) {
	q := `
INSERT INTO payments (account_id, promotion_id, amount, reference, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + paymentColumns + `;`
	inserted, err := scanPayment(r.pool.QueryRow(ctx, q,
		pay.AccountID,
		pay.PromotionID,
		pay.Amount,
		pay.Reference,
		PaymentPending,
	))
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return inserted, nil
}

// GetPaymentByReference retrieves a payment by its reference token.
func (r *Repository) GetPaymentByReference(ctx context.Context, reference string) (*Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1 LIMIT 1;`
	pay, err := scanPayment(r.pool.QueryRow(ctx, q, reference))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return pay, nil
}

// CompletePayment marks a pending payment completed. Completion only ever
// happens through the external confirmation action.
func (r *Repository) CompletePayment(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE payments SET status = $2, completed_at = $3 WHERE id = $1 AND status = $4;`
	ct, err := r.pool.Exec(ctx, q, id, PaymentCompleted, at, PaymentPending)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("complete payment %s: %w", id, ErrNotFound)
	}
	return nil
}
