package repo

import (
	"context"
	"fmt"
	"time"
)

// InsertBroadcast creates the durable in_progress marker before any send.
func (r *Repository) InsertBroadcast(ctx context.Context, b Broadcast) (*Broadcast, error) {
	const q = `
INSERT INTO broadcasts (promotion_id, status)
VALUES ($1, $2)
RETURNING id, promotion_id, total_recipients, sent_count, failed_count, status, created_at, completed_at;`
	var inserted Broadcast
	err := r.pool.QueryRow(ctx, q, b.PromotionID, BroadcastInProgress).Scan(
		&inserted.ID, &inserted.PromotionID, &inserted.TotalRecipients,
		&inserted.SentCount, &inserted.FailedCount, &inserted.Status,
		&inserted.CreatedAt, &inserted.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert broadcast: %w", err)
	}
	return &inserted, nil
}

// CompleteBroadcast writes the final totals after the fan-out pass.
func (r *Repository) CompleteBroadcast(ctx context.Context, id string, total, sent, failed int, at time.Time) error {
	const q = `
UPDATE broadcasts
SET total_recipients = $2, sent_count = $3, failed_count = $4, status = $5, completed_at = $6
WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, total, sent, failed, BroadcastCompleted, at)
	if err != nil {
		return fmt.Errorf("complete broadcast: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("complete broadcast %s: %w", id, ErrNotFound)
	}
	return nil
}

// HasCompletedBroadcast reports whether a promotion already has a completed
// dispatch record.
func (r *Repository) HasCompletedBroadcast(ctx context.Context, promotionID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM broadcasts WHERE promotion_id = $1 AND status = $2);`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, promotionID, BroadcastCompleted).Scan(&exists); err != nil {
		return false, fmt.Errorf("has completed broadcast: %w", err)
	}
	return exists, nil
}
