package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const accountColumns = `
id, phone, display_name, is_vendor, is_subscriber, current_mode,
verification_status, verification_doc, points, referral_code, referred_by,
free_trials_used, community_task_done, last_checkin, gender, interests,
business_name, business_description, business_category, is_active,
ai_memory, daily_ai_count, last_ai_usage, last_ai_reward, ai_points_today,
vendors_patronized_month, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Phone, &a.DisplayName, &a.IsVendor, &a.IsSubscriber, &a.CurrentMode,
		&a.VerificationStatus, &a.VerificationDoc, &a.Points, &a.ReferralCode, &a.ReferredBy,
		&a.FreeTrialsUsed, &a.CommunityTaskDone, &a.LastCheckin, &a.Gender, &a.Interests,
		&a.BusinessName, &a.BusinessDescription, &a.BusinessCategory, &a.IsActive,
		&a.AIMemory, &a.DailyAICount, &a.LastAIUsage, &a.LastAIReward, &a.AIPointsToday,
		&a.VendorsPatronizedMonth, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetOrCreateAccount loads the account for a phone identity, creating it
// lazily on the first inbound event from an unknown phone.
func (r *Repository) GetOrCreateAccount(ctx context.Context, phone string) (*Account, error) {
	q := `
INSERT INTO accounts (phone)
VALUES ($1)
ON CONFLICT (phone) DO UPDATE SET updated_at = NOW()
RETURNING ` + accountColumns + `;`
	acc, err := scanAccount(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		return nil, fmt.Errorf("get or create account: %w", err)
	}
	return acc, nil
}

// GetAccountByPhone returns the account for a phone identity.
func (r *Repository) GetAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE phone = $1 LIMIT 1;`
	acc, err := scanAccount(r.pool.QueryRow(ctx, q, phone))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account by phone: %w", err)
	}
	return acc, nil
}

// GetAccountByID returns the account by internal identifier.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 LIMIT 1;`
	acc, err := scanAccount(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return acc, nil
}

// GetAccountByReferralCode resolves a referral code to its owning account.
func (r *Repository) GetAccountByReferralCode(ctx context.Context, code string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1 LIMIT 1;`
	acc, err := scanAccount(r.pool.QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account by referral code: %w", err)
	}
	return acc, nil
}

// UpdateAccount persists all mutable account fields.
func (r *Repository) UpdateAccount(ctx context.Context, acc *Account) error {
	const q = `
UPDATE accounts SET
    display_name = $2,
    is_vendor = $3,
    is_subscriber = $4,
    current_mode = $5,
    verification_status = $6,
    verification_doc = $7,
    points = $8,
    referral_code = $9,
    referred_by = $10,
    free_trials_used = $11,
    community_task_done = $12,
    last_checkin = $13,
    gender = $14,
    interests = $15,
    business_name = $16,
    business_description = $17,
    business_category = $18,
    is_active = $19,
    ai_memory = $20,
    daily_ai_count = $21,
    last_ai_usage = $22,
    last_ai_reward = $23,
    ai_points_today = $24,
    vendors_patronized_month = $25,
    updated_at = NOW()
WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q,
		acc.ID,
		acc.DisplayName,
		acc.IsVendor,
		acc.IsSubscriber,
		acc.CurrentMode,
		acc.VerificationStatus,
		acc.VerificationDoc,
		acc.Points,
		acc.ReferralCode,
		acc.ReferredBy,
		acc.FreeTrialsUsed,
		acc.CommunityTaskDone,
		acc.LastCheckin,
		acc.Gender,
		acc.Interests,
		acc.BusinessName,
		acc.BusinessDescription,
		acc.BusinessCategory,
		acc.IsActive,
		acc.AIMemory,
		acc.DailyAICount,
		acc.LastAIUsage,
		acc.LastAIReward,
		acc.AIPointsToday,
		acc.VendorsPatronizedMonth,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update account %s: %w", acc.ID, ErrNotFound)
	}
	return nil
}

// AddPoints credits points to an account. Core operations only ever add.
func (r *Repository) AddPoints(ctx context.Context, accountID string, points float64) error {
	const q = `UPDATE accounts SET points = points + $2, updated_at = NOW() WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, accountID, points)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("add points to %s: %w", accountID, ErrNotFound)
	}
	return nil
}

// AddPatronage credits the patronage reward and bumps the monthly counter in
// one statement, so a confirmed order produces exactly one credit.
func (r *Repository) AddPatronage(ctx context.Context, accountID string, points float64) error {
	const q = `
UPDATE accounts
SET points = points + $2,
    vendors_patronized_month = vendors_patronized_month + 1,
    updated_at = NOW()
WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, accountID, points)
	if err != nil {
		return fmt.Errorf("add patronage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("add patronage to %s: %w", accountID, ErrNotFound)
	}
	return nil
}

// ListActiveSubscribers returns the broadcast candidate set: every account
// with both the subscriber flag and the active flag set.
func (r *Repository) ListActiveSubscribers(ctx context.Context) ([]Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE is_subscriber AND is_active ORDER BY created_at;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return accounts, nil
}

// CountReferrals counts accounts referred by the given account.
func (r *Repository) CountReferrals(ctx context.Context, accountID string) (int, error) {
	const q = `SELECT COUNT(*) FROM accounts WHERE referred_by = $1;`
	var n int
	if err := r.pool.QueryRow(ctx, q, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

// ResetMonthlyPatronage zeroes every account's monthly patronage counter.
func (r *Repository) ResetMonthlyPatronage(ctx context.Context) (int64, error) {
	const q = `UPDATE accounts SET vendors_patronized_month = 0, updated_at = NOW() WHERE vendors_patronized_month > 0;`
	ct, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("reset monthly patronage: %w", err)
	}
	return ct.RowsAffected(), nil
}
