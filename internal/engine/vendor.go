package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"marketbot/internal/repo"
)

func (e *Engine) sendWelcome(s *session) error {
	return s.buttons(
		"👋 Welcome to EasyMarket!\n\nSell your goods or discover deals from verified vendors. Who are you?",
		[]Button{
			{ID: "btn_0", Label: "🛍 I'm a Vendor"},
			{ID: "btn_1", Label: "🛒 I'm a Customer"},
		})
}

func (e *Engine) welcomeText(s *session, text string) error {
	switch strings.ToLower(text) {
	case "1", "vendor":
		return e.startVendorRegistration(s)
	case "2", "customer":
		return e.startCustomerRegistration(s)
	default:
		return e.sendWelcome(s)
	}
}

func (e *Engine) welcomeButton(s *session, buttonID string) error {
	switch buttonID {
	case "btn_0":
		return e.startVendorRegistration(s)
	case "btn_1", "btn_force_customer":
		return e.startCustomerRegistration(s)
	default:
		return e.sendWelcome(s)
	}
}

// vendorGateLocked reads the system-wide registration toggle. Accounts that
// already hold the vendor role bypass it.
func (e *Engine) vendorGateLocked(s *session) bool {
	if s.acc.IsVendor {
		return false
	}
	val, ok, err := e.store.GetSetting(s.ctx, repo.SettingVendorLock)
	if err != nil {
		e.logger.Warn("read vendor lock", "error", err)
		return false
	}
	if !ok {
		return false
	}
	switch strings.ToLower(val) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func (e *Engine) startVendorRegistration(s *session) error {
	if e.vendorGateLocked(s) {
		return s.buttons(
			"🚧 Vendor registration is temporarily closed while we onboard the current batch.\n\nYou can still join as a customer and earn points today!",
			[]Button{{ID: "btn_force_customer", Label: "🛒 Continue as Customer"}})
	}
	s.flow.startOnboarding()
	s.setState(StateVendorName)
	s.reply("Great! Let's set up your vendor profile.\n\nWhat is your full name?")
	return nil
}

func (e *Engine) selectDashboardText(s *session, text string) error {
	switch strings.ToLower(text) {
	case "1", "vendor":
		return e.selectDashboardButton(s, "btn_0")
	case "2", "customer":
		return e.selectDashboardButton(s, "btn_1")
	default:
		return s.buttons("Please pick a dashboard.", []Button{
			{ID: "btn_0", Label: "🛍 Vendor"},
			{ID: "btn_1", Label: "🛒 Customer"},
		})
	}
}

func (e *Engine) selectDashboardButton(s *session, buttonID string) error {
	switch buttonID {
	case "btn_0":
		s.acc.CurrentMode = repo.ModeVendor
		s.setState(StateVendorMenu)
		return e.sendVendorMenu(s)
	case "btn_1":
		s.acc.CurrentMode = repo.ModeSubscriber
		s.setState(StateCustomerMenu)
		return e.sendCustomerMenu(s)
	default:
		return e.selectDashboardText(s, "")
	}
}

func (e *Engine) vendorNameText(s *session, text string) error {
	if text == "" {
		s.reply("Please tell me your full name.")
		return nil
	}
	draft := s.flow.onboardingDraft()
	draft.Name = text
	s.setState(StateVendorBusiness)
	s.reply(fmt.Sprintf("Nice to meet you, %s! What is your business name?", text))
	return nil
}

func (e *Engine) vendorBusinessText(s *session, text string) error {
	if text == "" {
		s.reply("Please send your business name.")
		return nil
	}
	name := text
	s.acc.BusinessName = &name
	s.setState(StateVendorDesc)
	s.reply("What do you sell? A short description helps customers find you.")
	return nil
}

func (e *Engine) vendorDescText(s *session, text string) error {
	if text == "" {
		s.reply("Please describe what you sell.")
		return nil
	}
	desc := text
	s.acc.BusinessDescription = &desc
	s.setState(StateVendorVerification)
	s.reply("Last step: upload a photo of your business registration or a valid ID so we can verify you.")
	return nil
}

func (e *Engine) vendorVerificationText(s *session, _ string) error {
	s.reply("Please upload your document as an image or PDF to continue verification.")
	return nil
}

// vendorVerificationMedia completes vendor registration. Verification moves
// to pending; moderation flips it from there.
func (e *Engine) vendorVerificationMedia(s *session, mediaRef, _, _ string) error {
	draft := s.flow.onboardingDraft()
	if draft.Name != "" && s.acc.DisplayName == nil {
		name := draft.Name
		s.acc.DisplayName = &name
	}
	doc := mediaRef
	s.acc.VerificationDoc = &doc
	s.acc.VerificationStatus = repo.VerificationPending
	s.acc.IsVendor = true
	s.acc.CurrentMode = repo.ModeVendor
	if err := e.ensureReferralCode(s); err != nil {
		return err
	}

	s.flow.reset()
	s.setState(StateVendorMenu)
	s.reply("📄 Document received! Your account is under review. You'll be notified once verified.\n\nMeanwhile, here is your vendor dashboard.")
	return e.sendVendorMenu(s)
}

func (e *Engine) sendVendorMenu(s *session) error {
	return s.list("🛍 *Vendor Dashboard*\nWhat would you like to do?", "Open Menu", []ListSection{
		{
			Title: "Selling",
			Rows: []ListRow{
				{ID: "vendor_create_promo", Title: "📢 Promote a Product", Description: "Author a new ad"},
				{ID: "vendor_my_promos", Title: "📋 My Promotions", Description: "Status of your recent ads"},
			},
		},
		{
			Title: "Account",
			Rows: []ListRow{
				{ID: "vendor_profile", Title: "👤 My Profile"},
				{ID: "vendor_switch_customer", Title: "🛒 Switch to Customer"},
				{ID: "vendor_support", Title: "🆘 Support"},
			},
		},
	})
}

func (e *Engine) vendorMenuText(s *session, text string) error {
	switch strings.ToLower(text) {
	case "1":
		return e.vendorMenuButton(s, "vendor_create_promo")
	case "2":
		return e.vendorMenuButton(s, "vendor_my_promos")
	case "3":
		return e.vendorMenuButton(s, "vendor_profile")
	case "4":
		return e.vendorMenuButton(s, "vendor_switch_customer")
	case "5":
		return e.vendorMenuButton(s, "vendor_support")
	default:
		return e.sendVendorMenu(s)
	}
}

func (e *Engine) vendorMenuButton(s *session, buttonID string) error {
	switch buttonID {
	case "vendor_create_promo":
		return e.startPromoAuthoring(s)
	case "vendor_my_promos":
		return e.listMyPromotions(s)
	case "vendor_profile":
		return e.vendorProfile(s)
	case "vendor_switch_customer":
		return e.switchToCustomer(s)
	case "vendor_support":
		return e.startSupport(s, StateVendorMenu)
	default:
		return e.sendVendorMenu(s)
	}
}

func (e *Engine) listMyPromotions(s *session) error {
	promos, err := e.store.ListPromotionsByVendor(s.ctx, s.acc.ID, 5)
	if err != nil {
		return fmt.Errorf("list vendor promotions: %w", err)
	}
	if len(promos) == 0 {
		s.reply("You have no promotions yet. Pick *Promote a Product* to create your first ad!")
		return nil
	}
	var b strings.Builder
	b.WriteString("📋 *Your recent promotions*\n")
	for i, p := range promos {
		fmt.Fprintf(&b, "\n%d. %s — %s", i+1, p.Title, statusLabel(p.Status))
	}
	s.reply(b.String())
	return nil
}

func statusLabel(status string) string {
	switch status {
	case repo.PromoPending:
		return "⏳ pending review"
	case repo.PromoApproved:
		return "✅ approved"
	case repo.PromoRejected:
		return "❌ rejected"
	case repo.PromoBroadcasting:
		return "📡 broadcasting"
	case repo.PromoBroadcasted:
		return "📣 broadcasted"
	default:
		return status
	}
}

func (e *Engine) vendorProfile(s *session) error {
	name := "-"
	if s.acc.DisplayName != nil {
		name = *s.acc.DisplayName
	}
	business := "-"
	if s.acc.BusinessName != nil {
		business = *s.acc.BusinessName
	}
	desc := "-"
	if s.acc.BusinessDescription != nil {
		desc = *s.acc.BusinessDescription
	}
	s.reply(fmt.Sprintf(
		"👤 *Vendor Profile*\n\nName: %s\nBusiness: %s\nAbout: %s\nVerification: %s\nPoints: %.0f",
		name, business, desc, s.acc.VerificationStatus, s.acc.Points))
	return nil
}

func (e *Engine) switchToCustomer(s *session) error {
	if s.acc.IsSubscriber {
		s.acc.CurrentMode = repo.ModeSubscriber
		s.setState(StateCustomerMenu)
		return e.sendCustomerMenu(s)
	}
	return e.startCustomerRegistration(s)
}

func (e *Engine) startSupport(s *session, returnState string) error {
	s.flow.reset()
	s.flow.ReturnState = returnState
	s.setState(StateSupportMessage)
	s.reply("🆘 Tell us what went wrong and our team will get back to you.")
	return nil
}

func (e *Engine) supportMessageText(s *session, text string) error {
	if text == "" {
		s.reply("Please describe your issue in a message.")
		return nil
	}
	if _, err := e.store.InsertSupportTicket(s.ctx, repo.SupportTicket{
		AccountID: s.acc.ID,
		Message:   text,
	}); err != nil {
		return fmt.Errorf("insert support ticket: %w", err)
	}
	s.reply(fmt.Sprintf("✅ Ticket received! We'll reach out soon.\nYou can also contact %s or %s.", e.cfg.SupportEmail, e.cfg.SupportPhone))

	returnState := s.flow.ReturnState
	s.flow.reset()
	if returnState == StateCustomerMenu {
		s.setState(StateCustomerMenu)
		return e.sendCustomerMenu(s)
	}
	s.setState(StateVendorMenu)
	return e.sendVendorMenu(s)
}

// ensureReferralCode assigns the account's immutable referral code: the first
// three letters of the name uppercased plus four random digits, retried until
// unique.
func (e *Engine) ensureReferralCode(s *session) error {
	if s.acc.ReferralCode != nil {
		return nil
	}
	name := s.acc.Phone
	if s.acc.DisplayName != nil && *s.acc.DisplayName != "" {
		name = *s.acc.DisplayName
	}
	prefix := referralPrefix(name)

	for attempt := 0; attempt < 10; attempt++ {
		code := fmt.Sprintf("%s%04d", prefix, rand.IntN(10000))
		_, err := e.store.GetAccountByReferralCode(s.ctx, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("check referral code: %w", err)
		}
		s.acc.ReferralCode = &code
		return nil
	}
	// Practically unreachable; fall back to a timestamp suffix.
	code := fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%10000)
	s.acc.ReferralCode = &code
	return nil
}

func referralPrefix(name string) string {
	var letters []rune
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
			if len(letters) == 3 {
				break
			}
		}
	}
	for len(letters) < 3 {
		letters = append(letters, 'X')
	}
	return string(letters)
}
