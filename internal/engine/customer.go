package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketbot/internal/repo"
)

const inventoryCacheKey = "inventory:approved"
const inventoryCacheTTL = 5 * time.Minute

func (e *Engine) startCustomerRegistration(s *session) error {
	if s.acc.IsSubscriber {
		s.acc.CurrentMode = repo.ModeSubscriber
		s.setState(StateCustomerMenu)
		return e.sendCustomerMenu(s)
	}
	s.flow.startOnboarding()
	s.setState(StateCustomerName)
	s.reply("🛒 Welcome! Let's get you set up.\n\nWhat's your name?")
	return nil
}

func (e *Engine) customerNameText(s *session, text string) error {
	if text == "" {
		s.reply("Please tell me your name.")
		return nil
	}
	name := text
	s.acc.DisplayName = &name
	s.setState(StateCustomerGender)
	return s.buttons(fmt.Sprintf("Thanks %s! This helps us match you with the right deals.", name), []Button{
		{ID: "btn_0", Label: "Male"},
		{ID: "btn_1", Label: "Female"},
		{ID: "btn_2", Label: "Skip"},
	})
}

func (e *Engine) customerGenderText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "male":
		s.acc.Gender = "Male"
	case "female":
		s.acc.Gender = "Female"
	}
	return e.askInterests(s)
}

func (e *Engine) customerGenderButton(s *session, buttonID string) error {
	switch buttonID {
	case "btn_0":
		s.acc.Gender = "Male"
	case "btn_1":
		s.acc.Gender = "Female"
	}
	return e.askInterests(s)
}

func (e *Engine) askInterests(s *session) error {
	s.setState(StateCustomerInterests)
	var b strings.Builder
	b.WriteString("What are you into? Reply with numbers or names, comma separated.\n")
	for i, name := range interestTaxonomy {
		fmt.Fprintf(&b, "\n%d. %s", i+1, name)
	}
	s.reply(b.String())
	return nil
}

func (e *Engine) customerInterestsText(s *session, text string) error {
	s.acc.Interests = parseCategories(text)
	s.setState(StateCustomerReferral)
	s.reply("Were you invited by someone? Send their *referral code*, or reply *no*.")
	return nil
}

// customerReferralText finishes the core registration: the referrer is
// credited exactly once here, and the new customer gets their own code.
func (e *Engine) customerReferralText(s *session, text string) error {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	switch strings.ToLower(cleaned) {
	case "no", "none", "skip", "":
	default:
		referrer, err := e.store.GetAccountByReferralCode(s.ctx, cleaned)
		switch {
		case err == nil && referrer.ID != s.acc.ID && s.acc.ReferredBy == nil:
			if err := e.store.AddPoints(s.ctx, referrer.ID, ReferralReward); err != nil {
				return fmt.Errorf("credit referrer: %w", err)
			}
			id := referrer.ID
			s.acc.ReferredBy = &id
			e.countReward("referral")
			e.notify(s.ctx, referrer.Phone, fmt.Sprintf("🎉 Someone joined with your code! +%.0f points.", ReferralReward))
			s.reply("✅ Referral applied!")
		case errors.Is(err, repo.ErrNotFound):
			s.reply("That code doesn't look right, continuing without it.")
		case err != nil:
			return fmt.Errorf("lookup referral code: %w", err)
		}
	}

	s.acc.IsSubscriber = true
	s.acc.IsActive = true
	s.acc.CurrentMode = repo.ModeSubscriber
	if err := e.ensureReferralCode(s); err != nil {
		return err
	}
	s.flow.reset()

	s.setState(StateCustomerCommunityTask)
	s.reply(fmt.Sprintf(
		"💰 One last thing, earn your first points!\n\nJoin our community group:\n%s\n\nReply *joined* when you're in, or *skip*.",
		e.cfg.LinkCustomerGroup))
	return nil
}

func (e *Engine) communityTaskText(s *session, text string) error {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "skip":
		s.setState(StateCustomerMenu)
		s.reply("No problem, you can always join later. 🎉")
		return e.sendCustomerMenu(s)
	case "joined", "done", "ok":
		s.setState(StateCustomerCommunityCode)
		s.reply("🔑 Now send the secret code pinned in the group.")
		return nil
	default:
		s.reply("Reply *joined* once you're in the group, or *skip*.")
		return nil
	}
}

func (e *Engine) communityCodeText(s *session, text string) error {
	cleaned := strings.TrimSpace(text)
	switch {
	case strings.EqualFold(cleaned, "skip"):
	case strings.EqualFold(cleaned, e.cfg.CommunityCode):
		if applyCommunityCode(s.acc) {
			e.countReward("community")
			s.reply(fmt.Sprintf("🎉 Code accepted: +%.0f points!", CommunityReward))
		} else {
			s.reply("You've already claimed the community bonus. 👍")
		}
	default:
		s.reply("Hmm, that's not it. Check the pinned message in the group, or reply *skip*.")
		return nil
	}

	s.setState(StateCustomerMenu)
	s.reply("You're all set! 🎉")
	return e.sendCustomerMenu(s)
}

func (e *Engine) sendCustomerMenu(s *session) error {
	return s.list("🛒 *Customer Menu*\nDeals land here automatically. You can also just *type a question* and I'll help you shop!", "Open Menu", []ListSection{
		{
			Title: "Earn & Redeem",
			Rows: []ListRow{
				{ID: "cust_earn", Title: "💰 How to Earn", Description: "All the ways to get points"},
				{ID: "cust_status", Title: "📊 My Account", Description: "Points, referrals, status"},
				{ID: "cust_redeem", Title: "🎁 Redeem Points"},
			},
		},
		{
			Title: "Preferences",
			Rows: []ListRow{
				{ID: "cust_interests", Title: "🎯 Update Interests"},
				{ID: "cust_subscribe", Title: "🔔 Deals On/Off"},
				{ID: "cust_links", Title: "🌐 Our Socials"},
			},
		},
		{
			Title: "More",
			Rows: []ListRow{
				{ID: "cust_become_vendor", Title: "🛍 Become a Vendor"},
				{ID: "cust_support", Title: "🆘 Support"},
			},
		},
	})
}

// customerMenuText is the AI-chat fallback: free text in the customer menu is
// a shopping question, not a menu command.
func (e *Engine) customerMenuText(s *session, text string) error {
	if text == "" {
		return e.sendCustomerMenu(s)
	}
	if !s.acc.IsActive {
		s.reply("Your deal subscription is off. Turn it back on from the menu to chat and shop!")
		return e.sendCustomerMenu(s)
	}
	return e.aiChat(s, text)
}

func (e *Engine) customerMenuButton(s *session, buttonID string) error {
	switch buttonID {
	case "cust_earn":
		s.reply(fmt.Sprintf(
			"💰 *How to earn points*\n\n• Daily check-in: +%.0f (send *hi* once a day)\n• Chat with me: +%.0f per rewarded chat, up to %.0f/day\n• Refer a friend: +%.0f each\n• Community code: +%.0f one time\n• Buy from a vendor: +%.0f per confirmed order",
			CheckinReward, AIChatReward, AIDailyRewardCap, ReferralReward, CommunityReward, PatronageReward))
		return nil
	case "cust_status":
		return e.customerStatus(s)
	case "cust_redeem":
		if s.acc.Points >= RedeemThreshold {
			s.reply(fmt.Sprintf("🎁 You have %.0f points, enough to redeem! Contact %s to cash out.", s.acc.Points, e.cfg.SupportEmail))
		} else {
			s.reply(fmt.Sprintf("You have %.0f points. Redemption opens at %.0f, keep earning!", s.acc.Points, RedeemThreshold))
		}
		return nil
	case "cust_interests":
		s.setState(StateCustomerUpdInterests)
		return e.askInterestsUpdate(s)
	case "cust_subscribe":
		s.acc.IsActive = !s.acc.IsActive
		if s.acc.IsActive {
			s.reply("🔔 Deals are back on!")
		} else {
			s.reply("🔕 Deals paused. You won't receive promotions until you turn them back on.")
		}
		return nil
	case "cust_links":
		s.reply(fmt.Sprintf("🌐 Find us here:\nInstagram: %s\nTikTok: %s\nFacebook: %s", e.cfg.LinkInstagram, e.cfg.LinkTikTok, e.cfg.LinkFacebook))
		return nil
	case "cust_become_vendor":
		if s.acc.IsVendor {
			s.acc.CurrentMode = repo.ModeVendor
			s.setState(StateVendorMenu)
			return e.sendVendorMenu(s)
		}
		return e.startVendorRegistration(s)
	case "cust_support":
		return e.startSupport(s, StateCustomerMenu)
	default:
		return e.sendCustomerMenu(s)
	}
}

func (e *Engine) customerStatus(s *session) error {
	referrals, err := e.store.CountReferrals(s.ctx, s.acc.ID)
	if err != nil {
		return fmt.Errorf("count referrals: %w", err)
	}
	code := stringOr(s.acc.ReferralCode, "-")
	link := "https://wa.me/" + e.cfg.BotPhone
	if code != "-" {
		link += "?text=" + code
	}
	sub := "on 🔔"
	if !s.acc.IsActive {
		sub = "off 🔕"
	}
	s.reply(fmt.Sprintf(
		"📊 *My Account*\n\nName: %s\nPoints: %.0f\nReferral code: %s\nInvite link: %s\nFriends referred: %d\nDeals: %s",
		stringOr(s.acc.DisplayName, "-"), s.acc.Points, code, link, referrals, sub))
	return nil
}

func (e *Engine) askInterestsUpdate(s *session) error {
	var b strings.Builder
	b.WriteString("🎯 Pick your new interests, numbers or names, comma separated.\n")
	for i, name := range interestTaxonomy {
		fmt.Fprintf(&b, "\n%d. %s", i+1, name)
	}
	s.reply(b.String())
	return nil
}

func (e *Engine) updateInterestsText(s *session, text string) error {
	s.acc.Interests = parseCategories(text)
	s.setState(StateCustomerMenu)
	s.reply("✅ Interests updated: " + strings.ReplaceAll(s.acc.Interests, ",", ", "))
	return e.sendCustomerMenu(s)
}

// aiChat runs one conversational turn: quota, inventory context, reply,
// memory update, and the cooldown+cap gated engagement reward.
func (e *Engine) aiChat(s *session, text string) error {
	if !aiQuotaLeft(s.acc) {
		s.reply("🤖 You've used today's chat quota. Come back tomorrow, your quota resets at midnight!")
		return nil
	}

	inventory := e.inventoryContext(s.ctx)
	result, err := e.intel.SmartChat(s.ctx, stringOr(s.acc.DisplayName, ""), s.acc.AIMemory, text, inventory)
	if err != nil {
		e.logger.Warn("smart chat failed", "error", err)
		e.countError("ai")
		s.reply("🤖 I'm having trouble thinking right now, please try again in a moment.")
		return nil
	}

	consumeAIQuota(s.acc, e.now())
	if result.NewFact != "" {
		if s.acc.AIMemory != "" {
			s.acc.AIMemory += "; "
		}
		s.acc.AIMemory += result.NewFact
	}

	s.reply(result.Reply)
	if applyAIReward(s.acc, e.now()) {
		e.countReward("ai_chat")
		s.reply(fmt.Sprintf("💬 +%.0f points for chatting with me!", AIChatReward))
	}
	return nil
}

// inventoryContext builds the product context fed to AI chat from approved
// promotions, cached briefly so every chat turn doesn't hit the database.
func (e *Engine) inventoryContext(ctx context.Context) string {
	if e.cache != nil {
		var cached string
		if ok, err := e.cache.GetJSON(ctx, inventoryCacheKey, &cached); err == nil && ok {
			return cached
		}
	}

	promos, err := e.store.ListApprovedPromotions(ctx, 15)
	if err != nil {
		e.logger.Warn("load inventory", "error", err)
		return "Inventory: (currently unavailable)"
	}

	var b strings.Builder
	b.WriteString("Inventory:")
	if len(promos) == 0 {
		b.WriteString(" (no active deals right now)")
	}
	for _, p := range promos {
		price := fmt.Sprintf("₦%.0f", p.Price)
		if p.Negotiable {
			price = "negotiable"
		} else if p.Price == 0 {
			price = "free"
		}
		fmt.Fprintf(&b, "\n- %s (%s): %s, contact %s", p.Title, price, p.Description, p.ContactInfo)
	}
	built := b.String()

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, inventoryCacheKey, built, inventoryCacheTTL); err != nil {
			e.logger.Warn("cache inventory", "error", err)
		}
	}
	return built
}
