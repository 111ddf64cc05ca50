package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"marketbot/internal/engine"
	"marketbot/internal/metrics"
	"marketbot/internal/repo"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// Store is the persistence surface the dispatcher needs. *repo.Repository
// satisfies it.
type Store interface {
	GetPromotion(ctx context.Context, id string) (*repo.Promotion, error)
	ClaimPromotionForBroadcast(ctx context.Context, id string) error
	FinishPromotionBroadcast(ctx context.Context, id string, at time.Time) error
	GetAccountByID(ctx context.Context, id string) (*repo.Account, error)
	ListActiveSubscribers(ctx context.Context) ([]repo.Account, error)
	InsertBroadcast(ctx context.Context, b repo.Broadcast) (*repo.Broadcast, error)
	CompleteBroadcast(ctx context.Context, id string, total, sent, failed int, at time.Time) error
}

// Gateway sends the per-recipient messages.
type Gateway interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []engine.Button) error
	SendImage(ctx context.Context, to, mediaRef, caption string) error
	SendVideo(ctx context.Context, to, mediaRef, caption string) error
}

// Dispatcher fans an approved promotion out to every matching subscriber.
type Dispatcher struct {
	store       Store
	gateway     Gateway
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// New creates a dispatcher with bounded send concurrency.
func New(store Store, gateway Gateway, logger *slog.Logger, metricRegistry *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		store:       store,
		gateway:     gateway,
		logger:      logger.With("component", "broadcast"),
		metrics:     metricRegistry,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
}

// Result summarizes one completed dispatch.
type Result struct {
	BroadcastID string
	Total       int
	Sent        int
	Failed      int
}

// Dispatch claims the promotion, writes the in-progress record, fans out to
// every matching subscriber and records the outcome. Claiming first is what
// makes a second concurrent dispatch of the same promotion fail cleanly with
// repo.ErrAlreadyClaimed and no side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, promotionID string) (*Result, error) {
	if err := d.store.ClaimPromotionForBroadcast(ctx, promotionID); err != nil {
		return nil, fmt.Errorf("claim promotion %s: %w", promotionID, err)
	}
	return d.DispatchClaimed(ctx, promotionID)
}

// DispatchClaimed fans out a promotion whose broadcast claim the caller
// already holds. Used when the claim happens at the API edge and the fan-out
// runs in the background.
func (d *Dispatcher) DispatchClaimed(ctx context.Context, promotionID string) (*Result, error) {
	promo, err := d.store.GetPromotion(ctx, promotionID)
	if err != nil {
		return nil, fmt.Errorf("load promotion %s: %w", promotionID, err)
	}
	vendor, err := d.store.GetAccountByID(ctx, promo.VendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", promo.VendorID, err)
	}

	candidates, err := d.store.ListActiveSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	var recipients []repo.Account
	for _, acc := range candidates {
		if Matches(promo, &acc) {
			recipients = append(recipients, acc)
		}
	}

	// Durable marker before any send: a crash mid-dispatch leaves observable
	// partial progress, never silent loss.
	record, err := d.store.InsertBroadcast(ctx, repo.Broadcast{
		PromotionID:     promo.ID,
		TotalRecipients: len(recipients),
	})
	if err != nil {
		return nil, fmt.Errorf("insert broadcast record: %w", err)
	}
	if d.metrics != nil {
		d.metrics.BroadcastsStarted.Inc()
	}
	d.logger.Info("broadcast started", "promotion", promo.ID, "recipients", len(recipients))

	message := ComposeMessage(promo)
	var sent, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, acc := range recipients {
		g.Go(func() error {
			if err := d.sendOne(gctx, promo, &acc, message); err != nil {
				failed.Add(1)
				d.countRecipient("failed")
				d.logger.Warn("broadcast send failed", "promotion", promo.ID, "phone", acc.Phone, "error", err)
			} else {
				sent.Add(1)
				d.countRecipient("sent")
			}
			// A single recipient failure never aborts the pass.
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		BroadcastID: record.ID,
		Total:       len(recipients),
		Sent:        int(sent.Load()),
		Failed:      int(failed.Load()),
	}

	finishedAt := d.now()
	if err := d.store.CompleteBroadcast(ctx, record.ID, result.Total, result.Sent, result.Failed, finishedAt); err != nil {
		return result, fmt.Errorf("complete broadcast record: %w", err)
	}
	if err := d.store.FinishPromotionBroadcast(ctx, promo.ID, finishedAt); err != nil {
		return result, fmt.Errorf("mark promotion broadcasted: %w", err)
	}

	if err := d.gateway.SendText(ctx, vendor.Phone, fmt.Sprintf(
		"📣 Your promotion *%s* just went out to %d subscribers!", promo.Title, result.Sent)); err != nil {
		d.logger.Warn("vendor broadcast notice", "phone", vendor.Phone, "error", err)
	}

	d.logger.Info("broadcast completed", "promotion", promo.ID, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (d *Dispatcher) countRecipient(outcome string) {
	if d.metrics != nil {
		d.metrics.BroadcastRecipient.WithLabelValues(outcome).Inc()
	}
}

// sendOne delivers the promotion to a single recipient, choosing the send
// primitive from the media type and attaching the buy-intent button.
func (d *Dispatcher) sendOne(ctx context.Context, promo *repo.Promotion, acc *repo.Account, message string) error {
	buy := []engine.Button{{ID: engine.BuyButtonID(promo.ID), Label: "🛒 I'm interested"}}

	if promo.MediaRef != nil && promo.MediaType != nil {
		var err error
		switch *promo.MediaType {
		case "video":
			err = d.gateway.SendVideo(ctx, acc.Phone, *promo.MediaRef, message)
		default:
			err = d.gateway.SendImage(ctx, acc.Phone, *promo.MediaRef, message)
		}
		if err != nil {
			return err
		}
		if err := d.gateway.SendButtons(ctx, acc.Phone, "Like what you see?", buy); err != nil {
			d.logger.Warn("buy button send failed", "phone", acc.Phone, "error", err)
		}
		return nil
	}
	return d.gateway.SendButtons(ctx, acc.Phone, message, buy)
}

// Matches applies the recipient filters in order: a dual-role user currently
// on the vendor side is not interrupted; a set gender must agree with a
// non-All target; the category list must contain General or intersect the
// recipient's interest tags by case-insensitive substring.
func Matches(promo *repo.Promotion, acc *repo.Account) bool {
	if acc.CurrentMode == repo.ModeVendor {
		return false
	}

	target := strings.ToLower(strings.TrimSpace(promo.TargetGender))
	if target != "" && target != "all" {
		gender := strings.ToLower(strings.TrimSpace(acc.Gender))
		if gender != "" && gender != target {
			return false
		}
	}

	interests := strings.ToLower(acc.Interests)
	for _, cat := range strings.Split(promo.Category, ",") {
		cat = strings.ToLower(strings.TrimSpace(cat))
		if cat == "" {
			continue
		}
		if cat == "general" {
			return true
		}
		if interests != "" && strings.Contains(interests, cat) {
			return true
		}
	}
	return false
}

// ComposeMessage builds the outbound broadcast body: the caption plus the
// fixed price/contact footer.
func ComposeMessage(promo *repo.Promotion) string {
	price := fmt.Sprintf("₦%s", formatAmount(promo.Price))
	switch {
	case promo.Negotiable:
		price = "Negotiable"
	case promo.Price == 0:
		price = "Free"
	}
	return fmt.Sprintf("%s\n\n💰 Price: %s\n📞 Contact: %s", promo.Caption, price, promo.ContactInfo)
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
