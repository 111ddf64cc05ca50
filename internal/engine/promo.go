package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"marketbot/internal/ai"
	"marketbot/internal/repo"

	"github.com/google/uuid"
)

// Monetization policy for paid promotions.
const (
	MinPaidImpressions  = 500
	ImpressionUnitPrice = 10.0
	ServiceFeeRate      = 0.02
	FreeTrialLimit      = 2
)

// Promotion kinds.
const (
	PromoKindPaid = "paid"
	PromoKindFree = "free"
)

// startPromoAuthoring gates the flow on verification status before any
// scratch data is touched.
func (e *Engine) startPromoAuthoring(s *session) error {
	switch s.acc.VerificationStatus {
	case repo.VerificationVerified:
	case repo.VerificationRejected:
		s.setState(StateVendorVerification)
		s.reply("❌ Your last verification document was rejected. Please upload a new business registration or ID to try again.")
		return nil
	default:
		s.reply("⏳ Your account is still pending approval. You'll be able to promote products once you're verified.")
		return nil
	}

	s.flow.startPromo()
	s.setState(StatePromoTitle)
	s.reply("📢 Let's create your ad!\n\nWhat is the *title* of the product?")
	return nil
}

func (e *Engine) promoTitleText(s *session, text string) error {
	if text == "" {
		s.reply("Please send the product title.")
		return nil
	}
	s.flow.promoDraft().Title = text
	s.setState(StatePromoDescription)
	s.reply("Got it. Now send a short *description* of the product.")
	return nil
}

func (e *Engine) promoDescriptionText(s *session, text string) error {
	if text == "" {
		s.reply("Please send a short description.")
		return nil
	}
	s.flow.promoDraft().Description = text
	s.setState(StatePromoCategory)
	s.reply(categoryPrompt())
	return nil
}

func categoryPrompt() string {
	var b strings.Builder
	b.WriteString("Which categories fit your product? Reply with numbers or names, comma separated.\n")
	for i, name := range interestTaxonomy {
		fmt.Fprintf(&b, "\n%d. %s", i+1, name)
	}
	return b.String()
}

// parseCategories resolves numeric codes and case-insensitive names against
// the taxonomy. Anything unmatched collapses to General.
func parseCategories(text string) string {
	var picked []string
	seen := make(map[string]struct{})
	for _, token := range strings.Split(text, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		name := ""
		if n, err := strconv.Atoi(token); err == nil && n >= 1 && n <= len(interestTaxonomy) {
			name = interestTaxonomy[n-1]
		} else {
			for _, candidate := range interestTaxonomy {
				if strings.EqualFold(candidate, token) {
					name = candidate
					break
				}
			}
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		picked = append(picked, name)
	}
	if len(picked) == 0 {
		return "General"
	}
	return strings.Join(picked, ",")
}

func (e *Engine) promoCategoryText(s *session, text string) error {
	s.flow.promoDraft().Category = parseCategories(text)
	s.setState(StatePromoTargetGender)
	return s.buttons("Who is this ad for?", []Button{
		{ID: "btn_0", Label: "Everyone"},
		{ID: "btn_1", Label: "Male"},
		{ID: "btn_2", Label: "Female"},
	})
}

// parseGender silently defaults to All on anything unrecognized.
func parseGender(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "male":
		return "Male"
	case "female":
		return "Female"
	default:
		return "All"
	}
}

func (e *Engine) promoGenderText(s *session, text string) error {
	s.flow.promoDraft().Gender = parseGender(text)
	s.setState(StatePromoPrice)
	s.reply("What is the *price*? Send an amount, or *free* / *negotiable*.")
	return nil
}

func (e *Engine) promoGenderButton(s *session, buttonID string) error {
	switch buttonID {
	case "btn_1":
		return e.promoGenderText(s, "male")
	case "btn_2":
		return e.promoGenderText(s, "female")
	default:
		return e.promoGenderText(s, "all")
	}
}

// parsePrice accepts a numeric string with commas and a leading currency
// symbol stripped, or the literals free/0/negotiable.
func parsePrice(text string) (price float64, negotiable, ok bool) {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	switch cleaned {
	case "free", "0":
		return 0, false, true
	case "negotiable":
		return 0, true, true
	}
	cleaned = strings.TrimLeft(cleaned, "₦$n ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, false
	}
	return value, false, true
}

func (e *Engine) promoPriceText(s *session, text string) error {
	price, negotiable, ok := parsePrice(text)
	if !ok {
		s.reply("I couldn't read that price. Send a number like *5000*, or *free* / *negotiable*.")
		return nil
	}
	draft := s.flow.promoDraft()
	draft.Price = price
	draft.Negotiable = negotiable
	s.setState(StatePromoContact)
	s.reply("How should buyers contact you? Send a phone number or handle.")
	return nil
}

func (e *Engine) promoContactText(s *session, text string) error {
	if text == "" {
		s.reply("Please send a contact phone number or handle.")
		return nil
	}
	s.flow.promoDraft().Contact = text
	s.setState(StatePromoMedia)
	s.reply("📸 Send a product *photo or video*, or type *skip* to continue without media.")
	return nil
}

func (e *Engine) promoMediaText(s *session, text string) error {
	if strings.EqualFold(strings.TrimSpace(text), "skip") {
		return e.finalizePromotion(s)
	}
	s.reply("Send a photo or video of the product, or type *skip*.")
	return nil
}

func (e *Engine) promoMediaUpload(s *session, mediaRef, mime, _ string) error {
	draft := s.flow.promoDraft()
	draft.MediaRef = mediaRef
	if strings.HasPrefix(mime, "video/") {
		draft.MediaType = "video"
	} else {
		draft.MediaType = "image"
	}
	return e.finalizePromotion(s)
}

// finalizePromotion persists the authored fields as a pending promotion. A
// caption is synthesized if generation fails; a promotion never lacks one.
func (e *Engine) finalizePromotion(s *session) error {
	draft := s.flow.promoDraft()
	fields := ai.CaptionFields{
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
		BusinessName: stringOr(s.acc.BusinessName, ""),
	}

	caption, err := e.intel.GenerateCaption(s.ctx, fields, "")
	if err != nil || strings.TrimSpace(caption) == "" {
		if err != nil {
			e.logger.Warn("caption generation failed, using template", "error", err)
			e.countError("ai")
		}
		caption = ai.FallbackCaption(fields)
	}
	draft.Caption = caption

	promo := repo.Promotion{
		VendorID:     s.acc.ID,
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
		Negotiable:   draft.Negotiable,
		Category:     draft.Category,
		TargetGender: draft.Gender,
		ContactInfo:  draft.Contact,
		Caption:      caption,
	}
	if draft.MediaRef != "" {
		promo.MediaRef = &draft.MediaRef
		promo.MediaType = &draft.MediaType
	}
	saved, err := e.store.InsertPromotion(s.ctx, promo)
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	draft.PromotionID = saved.ID

	s.setState(StatePromoReviewAI)
	s.reply("Here is your generated ad caption:\n\n" + caption)
	return s.buttons("Do you like it? Reply *yes* to continue, or tell me what to change.", []Button{
		{ID: "btn_0", Label: "✅ I like it"},
		{ID: "btn_1", Label: "✏️ Change it"},
	})
}

// promoReviewText is the refinement loop. Affirmative replies advance; when
// the daily quota is gone the flow force-advances with the last caption;
// anything else is forwarded as a refinement instruction and the state holds.
func (e *Engine) promoReviewText(s *session, text string) error {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if _, yes := affirmativeReplies[lowered]; yes {
		return e.askPromotionType(s)
	}

	draft := s.flow.promoDraft()
	if !aiQuotaLeft(s.acc) {
		s.reply("You've used today's AI quota, so we'll go with the current caption.")
		return e.askPromotionType(s)
	}

	fields := ai.CaptionFields{
		Title:        draft.Title,
		Description:  draft.Description,
		Price:        draft.Price,
		BusinessName: stringOr(s.acc.BusinessName, ""),
	}
	caption, err := e.intel.GenerateCaption(s.ctx, fields, text)
	if err != nil || strings.TrimSpace(caption) == "" {
		if err != nil {
			e.logger.Warn("caption refinement failed", "error", err)
			e.countError("ai")
		}
		s.reply("I couldn't rework the caption just now. Reply *yes* to keep the current one, or try different feedback.")
		return nil
	}
	consumeAIQuota(s.acc, e.now())
	draft.Caption = caption
	if draft.PromotionID != "" {
		if err := e.store.UpdatePromotionCaption(s.ctx, draft.PromotionID, caption); err != nil {
			return fmt.Errorf("update caption: %w", err)
		}
	}
	s.reply("How about this:\n\n" + caption)
	return s.buttons("Happy with it?", []Button{
		{ID: "btn_0", Label: "✅ I like it"},
		{ID: "btn_1", Label: "✏️ Change it"},
	})
}

func (e *Engine) promoReviewButton(s *session, buttonID string) error {
	switch buttonID {
	case "btn_0":
		return e.askPromotionType(s)
	case "btn_1":
		s.reply("Tell me what to change about the caption.")
		return nil
	default:
		return nil
	}
}

func (e *Engine) askPromotionType(s *session) error {
	s.setState(StatePromoType)
	trialsLeft := FreeTrialLimit - s.acc.FreeTrialsUsed
	if trialsLeft < 0 {
		trialsLeft = 0
	}
	return s.buttons("How do you want to run this promotion?", []Button{
		{ID: "btn_0", Label: "💳 Paid blast"},
		{ID: "btn_1", Label: fmt.Sprintf("🎁 Free (%d left)", trialsLeft)},
	})
}

func (e *Engine) promoTypeText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "paid":
		return e.promoTypeButton(s, "btn_0")
	case "2", "free":
		return e.promoTypeButton(s, "btn_1")
	default:
		return e.askPromotionType(s)
	}
}

func (e *Engine) promoTypeButton(s *session, buttonID string) error {
	draft := s.flow.promoDraft()
	switch buttonID {
	case "btn_0":
		draft.Kind = PromoKindPaid
		s.setState(StatePaidImpressions)
		s.reply(fmt.Sprintf("💳 How many impressions do you want? Minimum %d.\nEach impression costs ₦%.0f plus a %.0f%% service fee.",
			MinPaidImpressions, ImpressionUnitPrice, ServiceFeeRate*100))
		return nil
	case "btn_1":
		if s.acc.FreeTrialsUsed >= FreeTrialLimit {
			s.reply("🎁 You've used both free promotions. Paid blasts reach far more buyers!")
			return e.askPromotionType(s)
		}
		draft.Kind = PromoKindFree
		return e.startFreeTasks(s)
	default:
		return e.askPromotionType(s)
	}
}

// PaidTotal computes the paid-promotion charge: impressions at unit price
// plus the service fee.
func PaidTotal(impressions int) float64 {
	return float64(impressions) * ImpressionUnitPrice * (1 + ServiceFeeRate)
}

func (e *Engine) paidImpressionsText(s *session, text string) error {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	impressions, err := strconv.Atoi(cleaned)
	if err != nil {
		s.reply("Please send a whole number of impressions, e.g. *1000*.")
		return nil
	}
	if impressions < MinPaidImpressions {
		s.reply(fmt.Sprintf("The minimum is %d impressions. How many do you want?", MinPaidImpressions))
		return nil
	}

	draft := s.flow.promoDraft()
	draft.Impressions = impressions
	total := PaidTotal(impressions)

	if draft.PromotionID != "" {
		if err := e.store.SetPromotionMonetization(s.ctx, draft.PromotionID, PromoKindPaid, impressions); err != nil {
			return fmt.Errorf("set monetization: %w", err)
		}
	}

	reference := "PAY-" + uuid.NewString()[:8]
	pay := repo.Payment{
		AccountID: s.acc.ID,
		Amount:    total,
		Reference: reference,
	}
	if draft.PromotionID != "" {
		id := draft.PromotionID
		pay.PromotionID = &id
	}
	if _, err := e.store.InsertPayment(s.ctx, pay); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	s.setState(StatePaidPaymentConfirm)
	s.reply(fmt.Sprintf(
		"🧾 *Order summary*\nImpressions: %d\nTotal: ₦%.2f\nReference: %s\n\nPay here: %s",
		impressions, total, reference, e.cfg.PaymentLink))
	return s.buttons("Tap below once you've paid.", []Button{{ID: "btn_0", Label: "✅ I have paid"}})
}

func (e *Engine) paidConfirmText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "paid", "done", "i have paid":
		return e.paidConfirmButton(s, "btn_0")
	default:
		s.reply("Tap *I have paid* once your payment is through, or send *cancel* to stop.")
		return nil
	}
}

func (e *Engine) paidConfirmButton(s *session, buttonID string) error {
	if buttonID != "btn_0" {
		return nil
	}
	s.reply("🧐 Thanks! Our team will confirm your payment shortly.")
	return e.askJoinCommunity(s)
}

func (e *Engine) askJoinCommunity(s *session) error {
	s.setState(StateVendorJoinCommunity)
	s.reply("🤝 One more thing: join our vendor community for tips and early features.\n" + e.cfg.LinkVendorGroup)
	return s.buttons("Tap once you've joined.", []Button{{ID: "btn_0", Label: "✅ I've joined"}})
}

func (e *Engine) joinCommunityText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "joined", "done", "ok":
		return e.joinCommunityButton(s, "btn_0")
	default:
		s.reply("Tap *I've joined* after joining the community group.")
		return nil
	}
}

func (e *Engine) joinCommunityButton(s *session, buttonID string) error {
	if buttonID != "btn_0" {
		return nil
	}
	if s.flow.promoDraft().Kind == PromoKindPaid {
		s.setState(StateVendorVerifyCode)
		s.reply("🔑 Enter the code pinned in the community group to confirm you're in.")
		return nil
	}
	return e.finishPromoFlow(s)
}

func (e *Engine) vendorVerifyCodeText(s *session, text string) error {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case cleaned == strings.ToUpper(e.cfg.CommunityCode):
		s.reply("✅ Code confirmed, welcome to the community!")
		return e.finishPromoFlow(s)
	case strings.EqualFold(cleaned, "skip"):
		return e.finishPromoFlow(s)
	default:
		s.reply("That code doesn't match. Check the pinned message in the group, or type *skip*.")
		return nil
	}
}

// finishPromoFlow closes the authoring flow. The promotion is already
// persisted pending; moderation takes it from here.
func (e *Engine) finishPromoFlow(s *session) error {
	if s.flow.promoDraft().Kind == PromoKindFree {
		if s.flow.promoDraft().PromotionID != "" {
			if err := e.store.SetPromotionMonetization(s.ctx, s.flow.promoDraft().PromotionID, PromoKindFree, 0); err != nil {
				return fmt.Errorf("set monetization: %w", err)
			}
		}
	}
	s.flow.reset()
	s.setState(StateVendorMenu)
	s.reply("🎉 Your promotion has been submitted and is *pending review*. We'll notify you once it's approved and broadcast.")
	return e.sendVendorMenu(s)
}

func (e *Engine) startFreeTasks(s *session) error {
	s.setState(StateFreeTasksSocial)
	s.reply(fmt.Sprintf(
		"🎁 Free promotion, two quick tasks!\n\n*Task 1:* Follow us on socials:\nInstagram: %s\nTikTok: %s\nFacebook: %s",
		e.cfg.LinkInstagram, e.cfg.LinkTikTok, e.cfg.LinkFacebook))
	return s.buttons("Tap when you're following.", []Button{{ID: "btn_0", Label: "✅ Done"}})
}

func (e *Engine) freeTasksText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "done", "ok", "followed":
		return e.freeTasksButton(s, "btn_0")
	default:
		s.reply("Follow the pages above, then tap *Done*.")
		return nil
	}
}

func (e *Engine) freeTasksButton(s *session, buttonID string) error {
	if buttonID != "btn_0" {
		return nil
	}
	s.setState(StateFreeTaskScreenshot1)
	s.reply("📸 Send a screenshot showing you follow us.")
	return nil
}

func (e *Engine) freeScreenshotNudge(s *session, _ string) error {
	s.reply("Please send the screenshot as an image to continue.")
	return nil
}

func (e *Engine) freeScreenshotMedia(s *session, _, _, _ string) error {
	if s.convo.State == StateFreeTaskScreenshot1 {
		s.setState(StateFreeTaskScreenshot2)
		code := stringOr(s.acc.ReferralCode, "")
		share := "https://wa.me/" + e.cfg.BotPhone
		if code != "" {
			share += "?text=" + code
		}
		s.reply(fmt.Sprintf(
			"*Task 2:* Share this link with 5 friends, then send a screenshot of your shares:\n%s", share))
		return nil
	}

	s.acc.FreeTrialsUsed++
	s.reply("✅ Tasks complete! That's one free promotion used.")
	return e.askJoinCommunity(s)
}

func stringOr(p *string, fallback string) string {
	if p != nil {
		return *p
	}
	return fallback
}
