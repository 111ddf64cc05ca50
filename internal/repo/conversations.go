package repo

import (
	"context"
	"fmt"
)

// GetOrCreateConversation loads the conversation row for a phone identity.
// The boolean reports whether the row was created by this call, so the
// engine can send the initial welcome prompt exactly once.
func (r *Repository) GetOrCreateConversation(ctx context.Context, phone string) (*Conversation, bool, error) {
	const q = `
INSERT INTO conversations (phone)
VALUES ($1)
ON CONFLICT (phone) DO UPDATE SET last_message_at = NOW()
RETURNING phone, state, context, last_message_at, (xmax = 0) AS inserted;`
	var convo Conversation
	var inserted bool
	err := r.pool.QueryRow(ctx, q, phone).Scan(&convo.Phone, &convo.State, &convo.Context, &convo.LastMessageAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("get or create conversation: %w", err)
	}
	return &convo, inserted, nil
}

// SaveConversation persists the state and flow context after a transition.
func (r *Repository) SaveConversation(ctx context.Context, convo *Conversation) error {
	const q = `
UPDATE conversations
SET state = $2, context = $3, last_message_at = NOW()
WHERE phone = $1;`
	ctxData := convo.Context
	if len(ctxData) == 0 {
		ctxData = []byte("{}")
	}
	ct, err := r.pool.Exec(ctx, q, convo.Phone, convo.State, ctxData)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save conversation %s: %w", convo.Phone, ErrNotFound)
	}
	return nil
}
