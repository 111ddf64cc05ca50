package repo

import "time"

// Operating modes for dual-role accounts.
const (
	ModeVendor     = "vendor"
	ModeSubscriber = "subscriber"
)

// Verification statuses for vendor accounts.
const (
	VerificationUnverified = "unverified"
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
	VerificationRejected   = "rejected"
)

// Promotion statuses. Broadcasting is the claimed intermediate state between
// approved and broadcasted; it exists so that two dispatchers cannot fan out
// the same promotion.
const (
	PromoPending      = "pending"
	PromoApproved     = "approved"
	PromoRejected     = "rejected"
	PromoBroadcasting = "broadcasting"
	PromoBroadcasted  = "broadcasted"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
)

// Broadcast statuses.
const (
	BroadcastInProgress = "in_progress"
	BroadcastCompleted  = "completed"
)

// Account represents one phone identity and both of its possible personas.
type Account struct {
	ID                     string
	Phone                  string
	DisplayName            *string
	IsVendor               bool
	IsSubscriber           bool
	CurrentMode            string
	VerificationStatus     string
	VerificationDoc        *string
	Points                 float64
	ReferralCode           *string
	ReferredBy             *string
	FreeTrialsUsed         int
	CommunityTaskDone      bool
	LastCheckin            *time.Time
	Gender                 string
	Interests              string
	BusinessName           *string
	BusinessDescription    *string
	BusinessCategory       *string
	IsActive               bool
	AIMemory               string
	DailyAICount           int
	LastAIUsage            *time.Time
	LastAIReward           *time.Time
	AIPointsToday          float64
	VendorsPatronizedMonth int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Conversation holds the FSM state and flow context for one phone identity.
type Conversation struct {
	Phone         string
	State         string
	Context       []byte
	LastMessageAt time.Time
}

// Promotion is one authored ad owned by a vendor account.
type Promotion struct {
	ID                string
	VendorID          string
	Title             string
	Description       string
	Price             float64
	Negotiable        bool
	Category          string
	TargetGender      string
	ContactInfo       string
	MediaRef          *string
	MediaType         *string
	PromoType         string
	TargetImpressions int
	Caption           string
	Status            string
	ApprovedAt        *time.Time
	BroadcastedAt     *time.Time
	CreatedAt         time.Time
}

// Payment records a paid-promotion purchase intent.
type Payment struct {
	ID          string
	AccountID   string
	PromotionID *string
	Amount      float64
	Reference   string
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Order records one buyer-expressed purchase intent on a promotion.
type Order struct {
	ID          string
	BuyerID     string
	VendorID    string
	PromotionID string
	Amount      float64
	Status      string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Broadcast records one dispatch attempt of a promotion.
type Broadcast struct {
	ID              string
	PromotionID     string
	TotalRecipients int
	SentCount       int
	FailedCount     int
	Status          string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// SupportTicket is a free-text complaint captured in a support sub-flow.
type SupportTicket struct {
	ID        string
	AccountID string
	Message   string
	Status    string
	CreatedAt time.Time
}
