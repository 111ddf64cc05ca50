package repo

import (
	"context"
	"io/fs"
	"time"
)

// Store defines the interface for data persistence.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Accounts
	GetOrCreateAccount(ctx context.Context, phone string) (*Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*Account, error)
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*Account, error)
	UpdateAccount(ctx context.Context, acc *Account) error
	AddPoints(ctx context.Context, accountID string, points float64) error
	AddPatronage(ctx context.Context, accountID string, points float64) error
	ListActiveSubscribers(ctx context.Context) ([]Account, error)
	CountReferrals(ctx context.Context, accountID string) (int, error)
	ResetMonthlyPatronage(ctx context.Context) (int64, error)

	// Conversations
	GetOrCreateConversation(ctx context.Context, phone string) (*Conversation, bool, error)
	SaveConversation(ctx context.Context, convo *Conversation) error

	// Promotions
	InsertPromotion(ctx context.Context, promo Promotion) (*Promotion, error)
	GetPromotion(ctx context.Context, id string) (*Promotion, error)
	ListPromotionsByVendor(ctx context.Context, vendorID string, limit int) ([]Promotion, error)
	ListApprovedPromotions(ctx context.Context, limit int) ([]Promotion, error)
	SetPromotionStatus(ctx context.Context, id, status string, at time.Time) error
	UpdatePromotionCaption(ctx context.Context, id, caption string) error
	SetPromotionMonetization(ctx context.Context, id, promoType string, impressions int) error
	ClaimPromotionForBroadcast(ctx context.Context, id string) error
	FinishPromotionBroadcast(ctx context.Context, id string, at time.Time) error

	// Payments
	InsertPayment(ctx context.Context, pay Payment) (*Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	CompletePayment(ctx context.Context, id string, at time.Time) error

	// Orders
	InsertOrder(ctx context.Context, order Order) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ConfirmOrder(ctx context.Context, id string, at time.Time) (bool, error)

	// Broadcasts
	InsertBroadcast(ctx context.Context, b Broadcast) (*Broadcast, error)
	CompleteBroadcast(ctx context.Context, id string, total, sent, failed int, at time.Time) error
	HasCompletedBroadcast(ctx context.Context, promotionID string) (bool, error)

	// Support tickets
	InsertSupportTicket(ctx context.Context, ticket SupportTicket) (*SupportTicket, error)
	ResolveSupportTicket(ctx context.Context, id string) error

	// System settings
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}
