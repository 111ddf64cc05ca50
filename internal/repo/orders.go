package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, buyer_id, vendor_id, promotion_id, amount, status, created_at, confirmed_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.VendorID, &o.PromotionID, &o.Amount, &o.Status, &o.CreatedAt, &o.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// InsertOrder stores a new pending order created by a buy-intent button.
func (r *Repository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	q := `
INSERT INTO orders (buyer_id, vendor_id, promotion_id, amount, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderColumns + `;`
	inserted, err := scanOrder(r.pool.QueryRow(ctx, q,
		order.BuyerID,
		order.VendorID,
		order.PromotionID,
		order.Amount,
		OrderPending,
	))
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return inserted, nil
}

// GetOrder retrieves an order by identifier.
func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 LIMIT 1;`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ConfirmOrder flips a pending order to confirmed. The boolean reports
// whether this call performed the transition; false means the order was
// already confirmed, so the patronage reward must not be credited again.
func (r *Repository) ConfirmOrder(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE orders SET status = $2, confirmed_at = $3 WHERE id = $1 AND status = $4;`
	ct, err := r.pool.Exec(ctx, q, id, OrderConfirmed, at, OrderPending)
	if err != nil {
		return false, fmt.Errorf("confirm order: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
