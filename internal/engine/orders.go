package engine

import (
	"errors"
	"fmt"

	"marketbot/internal/repo"
)

// Compound button id prefixes. These carry an embedded record reference and
// are valid from any conversation state because they originate from a
// broadcast, not the active flow.
const (
	buyPromoPrefix     = "buy_promo_"
	confirmOrderPrefix = "confirm_order_"
)

// BuyButtonID builds the buy-intent button id for a promotion.
func BuyButtonID(promotionID string) string {
	return buyPromoPrefix + promotionID
}

// handleBuyIntent creates a pending order, reveals the vendor's contact to
// the buyer and alerts the vendor with a confirm-sale button.
func (e *Engine) handleBuyIntent(s *session, promotionID string) error {
	promo, err := e.store.GetPromotion(s.ctx, promotionID)
	if errors.Is(err, repo.ErrNotFound) {
		s.reply("😕 That deal is no longer available.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load promotion: %w", err)
	}

	vendor, err := e.store.GetAccountByID(s.ctx, promo.VendorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.reply("😕 That vendor is no longer around.")
			return nil
		}
		return fmt.Errorf("load vendor: %w", err)
	}

	order, err := e.store.InsertOrder(s.ctx, repo.Order{
		BuyerID:     s.acc.ID,
		VendorID:    vendor.ID,
		PromotionID: promo.ID,
		Amount:      promo.Price,
	})
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	business := stringOr(vendor.BusinessName, "the vendor")
	s.reply(fmt.Sprintf(
		"🤝 Great choice! Here's how to reach %s:\n\n📞 %s\n\nOnce the vendor confirms your purchase you'll earn %.0f points!",
		business, promo.ContactInfo, PatronageReward))

	buyer := stringOr(s.acc.DisplayName, s.acc.Phone)
	if err := e.gateway.SendButtons(s.ctx, vendor.Phone,
		fmt.Sprintf("🛎 *New buyer alert!*\n%s is interested in *%s*. Tap below once the sale is done.", buyer, promo.Title),
		[]Button{{ID: confirmOrderPrefix + order.ID, Label: "✅ Confirm Sale"}}); err != nil {
		e.logger.Warn("vendor buy alert", "phone", vendor.Phone, "error", err)
		e.countError("gateway")
	}
	return nil
}

// handleConfirmSale flips the order to confirmed exactly once; the first
// transition credits the buyer's patronage reward. A second tap is a no-op
// acknowledgement.
func (e *Engine) handleConfirmSale(s *session, orderID string) error {
	order, err := e.store.GetOrder(s.ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		s.reply("😕 I couldn't find that order anymore.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	confirmed, err := e.store.ConfirmOrder(s.ctx, order.ID, e.now())
	if err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}
	if !confirmed {
		s.reply("This sale was already confirmed. 👍")
		return nil
	}

	if err := e.store.AddPatronage(s.ctx, order.BuyerID, PatronageReward); err != nil {
		return fmt.Errorf("credit patronage: %w", err)
	}
	e.countReward("patronage")

	s.reply("✅ Sale confirmed. Thanks for closing the loop!")

	buyer, err := e.store.GetAccountByID(s.ctx, order.BuyerID)
	if err != nil {
		e.logger.Warn("load buyer for notify", "order", order.ID, "error", err)
		return nil
	}
	e.notify(s.ctx, buyer.Phone, fmt.Sprintf("🎉 Your purchase was confirmed: +%.0f points!", PatronageReward))
	return nil
}
