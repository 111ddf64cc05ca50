package engine

// Conversation states. The set is closed; an unknown persisted value is
// treated as StateWelcome.
const (
	StateWelcome         = "WELCOME"
	StateSelectDashboard = "SELECT_DASHBOARD"

	StateVendorName         = "VENDOR_NAME"
	StateVendorBusiness     = "VENDOR_BUSINESS"
	StateVendorDesc         = "VENDOR_DESC"
	StateVendorVerification = "VENDOR_VERIFICATION"
	StateVendorMenu         = "VENDOR_MENU"
	StateSupportMessage     = "SUPPORT_MESSAGE"

	StatePromoTitle        = "PROMO_TITLE"
	StatePromoDescription  = "PROMO_DESCRIPTION"
	StatePromoCategory     = "PROMO_CATEGORY"
	StatePromoTargetGender = "PROMO_TARGET_GENDER"
	StatePromoPrice        = "PROMO_PRICE"
	StatePromoContact      = "PROMO_CONTACT"
	StatePromoMedia        = "PROMO_MEDIA"
	StatePromoReviewAI     = "PROMO_REVIEW_AI"
	StatePromoType         = "PROMO_TYPE"

	StatePaidImpressions     = "PAID_IMPRESSIONS"
	StatePaidPaymentConfirm  = "PAID_PAYMENT_CONFIRM"
	StateVendorJoinCommunity = "VENDOR_JOIN_COMMUNITY"
	StateVendorVerifyCode    = "VENDOR_VERIFY_CODE"

	StateFreeTasksSocial     = "FREE_TASKS_SOCIAL"
	StateFreeTaskScreenshot1 = "FREE_TASK_SCREENSHOT_1"
	StateFreeTaskScreenshot2 = "FREE_TASK_SCREENSHOT_2"

	StateCustomerName          = "CUSTOMER_NAME"
	StateCustomerGender        = "CUSTOMER_GENDER"
	StateCustomerInterests     = "CUSTOMER_INTERESTS"
	StateCustomerReferral      = "CUSTOMER_REFERRAL"
	StateCustomerCommunityTask = "CUSTOMER_COMMUNITY_TASK"
	StateCustomerCommunityCode = "CUSTOMER_COMMUNITY_CODE"
	StateCustomerMenu          = "CUSTOMER_MENU"
	StateCustomerUpdInterests  = "CUSTOMER_UPDATE_INTERESTS"
)

// interestTaxonomy maps the fixed numeric codes customers and vendors pick
// categories from.
var interestTaxonomy = []string{
	"Business",
	"Fashion",
	"Food",
	"Campus",
	"Jobs",
	"Tech",
	"Entertainment",
	"Real Estate",
	"Health",
	"Education",
}

var cancelKeywords = map[string]struct{}{
	"cancel":  {},
	"restart": {},
	"reset":   {},
	"quit":    {},
	"abort":   {},
}

var greetingKeywords = map[string]struct{}{
	"hi":    {},
	"hello": {},
	"hey":   {},
	"menu":  {},
	"start": {},
}

var affirmativeReplies = map[string]struct{}{
	"yes":       {},
	"ok":        {},
	"okay":      {},
	"good":      {},
	"i like it": {},
	"proceed":   {},
	"next":      {},
}
