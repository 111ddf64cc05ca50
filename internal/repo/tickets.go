package repo

import (
	"context"
	"fmt"
)

// InsertSupportTicket stores an open complaint from a support sub-flow.
func (r *Repository) InsertSupportTicket(ctx context.Context, ticket SupportTicket) (*SupportTicket, error) {
	const q = `
INSERT INTO support_tickets (account_id, message, status)
VALUES ($1, $2, 'open')
RETURNING id, account_id, message, status, created_at;`
	var inserted SupportTicket
	err := r.pool.QueryRow(ctx, q, ticket.AccountID, ticket.Message).Scan(
		&inserted.ID, &inserted.AccountID, &inserted.Message, &inserted.Status, &inserted.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert support ticket: %w", err)
	}
	return &inserted, nil
}

// ResolveSupportTicket closes a ticket. Only moderation calls this.
func (r *Repository) ResolveSupportTicket(ctx context.Context, id string) error {
	const q = `UPDATE support_tickets SET status = 'resolved' WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("resolve support ticket: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("resolve support ticket %s: %w", id, ErrNotFound)
	}
	return nil
}
