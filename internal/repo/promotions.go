package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const promotionColumns = `
id, vendor_id, title, description, price, negotiable, category, target_gender,
contact_info, media_ref, media_type, promo_type, target_impressions, caption,
status, approved_at, broadcasted_at, created_at`

func scanPromotion(row pgx.Row) (*Promotion, error) {
	var p Promotion
	err := row.Scan(
		&p.ID, &p.VendorID, &p.Title, &p.Description, &p.Price, &p.Negotiable,
		&p.Category, &p.TargetGender, &p.ContactInfo, &p.MediaRef, &p.MediaType,
		&p.PromoType, &p.TargetImpressions, &p.Caption, &p.Status,
		&p.ApprovedAt, &p.BroadcastedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// InsertPromotion stores a new authored ad with pending status.
func (r *Repository) InsertPromotion(ctx context.Context, promo Promotion) (*Promotion, error) {
	q := `
INSERT INTO promotions (vendor_id, title, description, price, negotiable, category,
    target_gender, contact_info, media_ref, media_type, promo_type,
    target_impressions, caption, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + promotionColumns + `;`
	inserted, err := scanPromotion(r.pool.QueryRow(ctx, q,
		promo.VendorID,
		promo.Title,
		promo.Description,
		promo.Price,
		promo.Negotiable,
		promo.Category,
		promo.TargetGender,
		promo.ContactInfo,
		promo.MediaRef,
		promo.MediaType,
		promo.PromoType,
		promo.TargetImpressions,
		promo.Caption,
		PromoPending,
	))
	if err != nil {
		return nil, fmt.Errorf("insert promotion: %w", err)
	}
	return inserted, nil
}

// GetPromotion retrieves a promotion by identifier.
func (r *Repository) GetPromotion(ctx context.Context, id string) (*Promotion, error) {
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1 LIMIT 1;`
	promo, err := scanPromotion(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return promo, nil
}

// ListPromotionsByVendor returns the vendor's most recent promotions.
func (r *Repository) ListPromotionsByVendor(ctx context.Context, vendorID string, limit int) ([]Promotion, error) {
	if limit <= 0 {
		limit = 5
	}
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE vendor_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, vendorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list promotions by vendor: %w", err)
	}
	defer rows.Close()
	return collectPromotions(rows)
}

// ListApprovedPromotions returns the latest approved ads, newest first. The
// engine feeds these to the AI chat as inventory context.
func (r *Repository) ListApprovedPromotions(ctx context.Context, limit int) ([]Promotion, error) {
	if limit <= 0 {
		limit = 15
	}
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE status = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, PromoApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("list approved promotions: %w", err)
	}
	defer rows.Close()
	return collectPromotions(rows)
}

func collectPromotions(rows pgx.Rows) ([]Promotion, error) {
	var promos []Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotions: %w", err)
	}
	return promos, nil
}

// SetPromotionStatus moves a promotion to the given moderation status and
// stamps approval time when it becomes approved.
func (r *Repository) SetPromotionStatus(ctx context.Context, id, status string, at time.Time) error {
	const q = `
UPDATE promotions
SET status = $2,
    approved_at = CASE WHEN $2 = 'approved' THEN $3 ELSE approved_at END
WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, status, at)
	if err != nil {
		return fmt.Errorf("set promotion status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set promotion status %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdatePromotionCaption overwrites the generated caption of a pending
// promotion after a refinement pass.
func (r *Repository) UpdatePromotionCaption(ctx context.Context, id, caption string) error {
	const q = `UPDATE promotions SET caption = $2 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, caption)
	if err != nil {
		return fmt.Errorf("update promotion caption: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update promotion caption %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPromotionMonetization records the chosen promotion kind and, for paid
// promotions, the purchased impression target.
func (r *Repository) SetPromotionMonetization(ctx context.Context, id, promoType string, impressions int) error {
	const q = `UPDATE promotions SET promo_type = $2, target_impressions = $3 WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, id, promoType, impressions)
	if err != nil {
		return fmt.Errorf("set promotion monetization: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set promotion monetization %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimPromotionForBroadcast atomically transitions approved -> broadcasting.
// A promotion that is not exactly approved loses the claim, which is what
// keeps the at-most-one-broadcast invariant under concurrent dispatch.
func (r *Repository) ClaimPromotionForBroadcast(ctx context.Context, id string) error {
	const q = `UPDATE promotions SET status = $2 WHERE id = $1 AND status = $3;`
	ct, err := r.pool.Exec(ctx, q, id, PromoBroadcasting, PromoApproved)
	if err != nil {
		return fmt.Errorf("claim promotion for broadcast: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// FinishPromotionBroadcast marks a claimed promotion as broadcasted.
func (r *Repository) FinishPromotionBroadcast(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE promotions SET status = $2, broadcasted_at = $3 WHERE id = $1 AND status = $4;`
	ct, err := r.pool.Exec(ctx, q, id, PromoBroadcasted, at, PromoBroadcasting)
	if err != nil {
		return fmt.Errorf("finish promotion broadcast: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("finish promotion broadcast %s: %w", id, ErrNotFound)
	}
	return nil
}
