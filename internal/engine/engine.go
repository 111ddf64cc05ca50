package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketbot/internal/ai"
	"marketbot/internal/metrics"
	"marketbot/internal/repo"
)

// Store is the persistence surface the engine needs. *repo.Repository
// satisfies it.
type Store interface {
	GetOrCreateAccount(ctx context.Context, phone string) (*repo.Account, error)
	GetAccountByID(ctx context.Context, id string) (*repo.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*repo.Account, error)
	UpdateAccount(ctx context.Context, acc *repo.Account) error
	AddPoints(ctx context.Context, accountID string, points float64) error
	AddPatronage(ctx context.Context, accountID string, points float64) error
	CountReferrals(ctx context.Context, accountID string) (int, error)

	GetOrCreateConversation(ctx context.Context, phone string) (*repo.Conversation, bool, error)
	SaveConversation(ctx context.Context, convo *repo.Conversation) error

	InsertPromotion(ctx context.Context, promo repo.Promotion) (*repo.Promotion, error)
	GetPromotion(ctx context.Context, id string) (*repo.Promotion, error)
	ListPromotionsByVendor(ctx context.Context, vendorID string, limit int) ([]repo.Promotion, error)
	ListApprovedPromotions(ctx context.Context, limit int) ([]repo.Promotion, error)
	UpdatePromotionCaption(ctx context.Context, id, caption string) error
	SetPromotionMonetization(ctx context.Context, id, promoType string, impressions int) error

	InsertPayment(ctx context.Context, pay repo.Payment) (*repo.Payment, error)

	InsertOrder(ctx context.Context, order repo.Order) (*repo.Order, error)
	GetOrder(ctx context.Context, id string) (*repo.Order, error)
	ConfirmOrder(ctx context.Context, id string, at time.Time) (bool, error)

	InsertSupportTicket(ctx context.Context, ticket repo.SupportTicket) (*repo.SupportTicket, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Button is one quick-reply option.
type Button struct {
	ID    string
	Label string
}

// ListRow is one selectable row of an interactive list.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups list rows under a heading.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// Gateway sends outbound messages. A delivery failure is an error value,
// never a panic.
type Gateway interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []Button) error
	SendList(ctx context.Context, to, body, action string, sections []ListSection) error
	SendImage(ctx context.Context, to, mediaRef, caption string) error
	SendVideo(ctx context.Context, to, mediaRef, caption string) error
}

// Intelligence produces captions and conversational replies. Its output is
// opaque text; nothing beyond the named fields is trusted.
type Intelligence interface {
	GenerateCaption(ctx context.Context, fields ai.CaptionFields, instruction string) (string, error)
	SmartChat(ctx context.Context, name, memory, message, inventory string) (*ai.ChatResult, error)
}

// Cache is an optional JSON cache for the approved-promotion inventory fed
// to AI chat. *cache.Redis satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config carries the static copy and links the engine embeds in messages.
type Config struct {
	CommunityCode     string
	PaymentLink       string
	BotPhone          string
	LinkInstagram     string
	LinkTikTok        string
	LinkFacebook      string
	LinkVendorGroup   string
	LinkCustomerGroup string
	SupportEmail      string
	SupportPhone      string
}

type textHandler func(s *session, text string) error
type buttonHandler func(s *session, buttonID string) error
type mediaHandler func(s *session, mediaRef, mime, caption string) error

// Engine is the conversation state machine. One inbound event per identity at
// a time; independent identities run in parallel.
type Engine struct {
	store   Store
	gateway Gateway
	intel   Intelligence
	cache   Cache
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	locks   identityLocks

	textHandlers   map[string]textHandler
	buttonHandlers map[string]buttonHandler
	mediaHandlers  map[string]mediaHandler
}

// New builds the engine and its dispatch tables.
func New(store Store, gateway Gateway, intel Intelligence, cache Cache, cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Engine {
	e := &Engine{
		store:   store,
		gateway: gateway,
		intel:   intel,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		metrics: metricRegistry,
		now:     time.Now,
		locks:   identityLocks{entries: make(map[string]*lockEntry)},
	}

	e.textHandlers = map[string]textHandler{
		StateWelcome:         e.welcomeText,
		StateSelectDashboard: e.selectDashboardText,

		StateVendorName:         e.vendorNameText,
		StateVendorBusiness:     e.vendorBusinessText,
		StateVendorDesc:         e.vendorDescText,
		StateVendorVerification: e.vendorVerificationText,
		StateVendorMenu:         e.vendorMenuText,
		StateSupportMessage:     e.supportMessageText,

		StatePromoTitle:        e.promoTitleText,
		StatePromoDescription:  e.promoDescriptionText,
		StatePromoCategory:     e.promoCategoryText,
		StatePromoTargetGender: e.promoGenderText,
		StatePromoPrice:        e.promoPriceText,
		StatePromoContact:      e.promoContactText,
		StatePromoMedia:        e.promoMediaText,
		StatePromoReviewAI:     e.promoReviewText,
		StatePromoType:         e.promoTypeText,

		StatePaidImpressions:     e.paidImpressionsText,
		StatePaidPaymentConfirm:  e.paidConfirmText,
		StateVendorJoinCommunity: e.joinCommunityText,
		StateVendorVerifyCode:    e.vendorVerifyCodeText,

		StateFreeTasksSocial:     e.freeTasksText,
		StateFreeTaskScreenshot1: e.freeScreenshotNudge,
		StateFreeTaskScreenshot2: e.freeScreenshotNudge,

		StateCustomerName:          e.customerNameText,
		StateCustomerGender:        e.customerGenderText,
		StateCustomerInterests:     e.customerInterestsText,
		StateCustomerReferral:      e.customerReferralText,
		StateCustomerCommunityTask: e.communityTaskText,
		StateCustomerCommunityCode: e.communityCodeText,
		StateCustomerMenu:          e.customerMenuText,
		StateCustomerUpdInterests:  e.updateInterestsText,
	}

	e.buttonHandlers = map[string]buttonHandler{
		StateWelcome:             e.welcomeButton,
		StateSelectDashboard:     e.selectDashboardButton,
		StateVendorMenu:          e.vendorMenuButton,
		StatePromoTargetGender:   e.promoGenderButton,
		StatePromoReviewAI:       e.promoReviewButton,
		StatePromoType:           e.promoTypeButton,
		StatePaidPaymentConfirm:  e.paidConfirmButton,
		StateVendorJoinCommunity: e.joinCommunityButton,
		StateFreeTasksSocial:     e.freeTasksButton,
		StateCustomerGender:      e.customerGenderButton,
		StateCustomerMenu:        e.customerMenuButton,
	}

	e.mediaHandlers = map[string]mediaHandler{
		StateVendorVerification:  e.vendorVerificationMedia,
		StatePromoMedia:          e.promoMediaUpload,
		StateFreeTaskScreenshot1: e.freeScreenshotMedia,
		StateFreeTaskScreenshot2: e.freeScreenshotMedia,
	}

	return e
}

// session carries one event's working set through its handler.
type session struct {
	ctx   context.Context
	e     *Engine
	acc   *repo.Account
	convo *repo.Conversation
	flow  *FlowContext
	fresh bool
}

func (e *Engine) newSession(ctx context.Context, phone string) (*session, error) {
	acc, err := e.store.GetOrCreateAccount(ctx, phone)
	if err != nil {
		return nil, err
	}
	convo, created, err := e.store.GetOrCreateConversation(ctx, phone)
	if err != nil {
		return nil, err
	}
	s := &session{
		ctx:   ctx,
		e:     e,
		acc:   acc,
		convo: convo,
		flow:  decodeFlowContext(convo.Context),
		fresh: created,
	}
	resetDailyAI(s.acc, e.now())
	return s, nil
}

// commit persists account and conversation mutations after a handler ran.
func (e *Engine) commit(s *session) {
	// On encode failure the previous context bytes stand; an in-flight draft
	// is never replaced with an empty one.
	if raw, err := s.flow.encode(); err != nil {
		e.logger.Error("encode flow context", "phone", s.acc.Phone, "error", err)
		e.countError("context")
	} else {
		s.convo.Context = raw
	}
	s.convo.LastMessageAt = e.now()

	if err := e.store.UpdateAccount(s.ctx, s.acc); err != nil {
		e.logger.Error("update account", "phone", s.acc.Phone, "error", err)
		e.countError("store")
	}
	if err := e.store.SaveConversation(s.ctx, s.convo); err != nil {
		e.logger.Error("save conversation", "phone", s.acc.Phone, "error", err)
		e.countError("store")
	}
}

// HandleText processes one inbound text event for the given phone identity.
func (e *Engine) HandleText(ctx context.Context, phone, text string) {
	unlock := e.locks.lock(phone)
	defer unlock()

	s, err := e.newSession(ctx, phone)
	if err != nil {
		e.logger.Error("open session", "phone", phone, "error", err)
		e.countError("session")
		return
	}

	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	var handlerErr error
	switch {
	case isCancel(lowered):
		handlerErr = e.goHome(s, "Okay, cancelled. Back to your menu.")
	// A brand-new conversation is welcomed whatever the first message says.
	case s.fresh || isGreeting(lowered):
		handlerErr = e.handleEntry(s)
	default:
		handler, ok := e.textHandlers[s.convo.State]
		if !ok {
			handler = e.welcomeText
			s.setState(StateWelcome)
		}
		handlerErr = handler(s, trimmed)
	}
	if handlerErr != nil {
		e.logger.Error("text handler", "phone", phone, "state", s.convo.State, "error", handlerErr)
		e.countError("handler")
	}
	e.commit(s)
}

// HandleButton processes one inbound button event. The two compound ids are
// recognized before state routing because they arrive from broadcasts, not
// from the active flow.
func (e *Engine) HandleButton(ctx context.Context, phone, buttonID string) {
	unlock := e.locks.lock(phone)
	defer unlock()

	s, err := e.newSession(ctx, phone)
	if err != nil {
		e.logger.Error("open session", "phone", phone, "error", err)
		e.countError("session")
		return
	}

	var handlerErr error
	switch {
	case strings.HasPrefix(buttonID, buyPromoPrefix):
		handlerErr = e.handleBuyIntent(s, strings.TrimPrefix(buttonID, buyPromoPrefix))
	case strings.HasPrefix(buttonID, confirmOrderPrefix):
		handlerErr = e.handleConfirmSale(s, strings.TrimPrefix(buttonID, confirmOrderPrefix))
	default:
		handler, ok := e.buttonHandlers[s.convo.State]
		if !ok {
			s.reply("Please use the menu. Send *menu* to see your options.")
		} else {
			handlerErr = handler(s, buttonID)
		}
	}
	if handlerErr != nil {
		e.logger.Error("button handler", "phone", phone, "state", s.convo.State, "error", handlerErr)
		e.countError("handler")
	}
	e.commit(s)
}

// HandleMedia processes one inbound media event.
func (e *Engine) HandleMedia(ctx context.Context, phone, mediaRef, mime, caption string) {
	unlock := e.locks.lock(phone)
	defer unlock()

	s, err := e.newSession(ctx, phone)
	if err != nil {
		e.logger.Error("open session", "phone", phone, "error", err)
		e.countError("session")
		return
	}

	handler, ok := e.mediaHandlers[s.convo.State]
	if !ok {
		s.reply("I wasn't expecting a file here. Send *menu* to see your options.")
		e.commit(s)
		return
	}
	if err := handler(s, mediaRef, mime, caption); err != nil {
		e.logger.Error("media handler", "phone", phone, "state", s.convo.State, "error", err)
		e.countError("handler")
	}
	e.commit(s)
}

func isCancel(lowered string) bool {
	_, ok := cancelKeywords[lowered]
	return ok
}

func isGreeting(lowered string) bool {
	_, ok := greetingKeywords[lowered]
	return ok
}

// goHome resets to the highest-privilege home state, discarding any in-flight
// flow context.
func (e *Engine) goHome(s *session, notice string) error {
	s.flow.reset()
	if notice != "" {
		s.reply(notice)
	}
	switch {
	case s.acc.CurrentMode == repo.ModeVendor && s.acc.IsVendor:
		s.setState(StateVendorMenu)
		return e.sendVendorMenu(s)
	case s.acc.IsSubscriber:
		s.acc.CurrentMode = repo.ModeSubscriber
		s.setState(StateCustomerMenu)
		return e.sendCustomerMenu(s)
	case s.acc.IsVendor:
		s.acc.CurrentMode = repo.ModeVendor
		s.setState(StateVendorMenu)
		return e.sendVendorMenu(s)
	default:
		s.setState(StateWelcome)
		return e.sendWelcome(s)
	}
}

// handleEntry runs on greeting keywords: check-in reward, then routing to
// the dashboard picker or the single home state.
func (e *Engine) handleEntry(s *session) error {
	if applyCheckin(s.acc, e.now()) {
		s.reply("✅ Daily check-in: +500 points!")
		e.countReward("checkin")
	}

	switch {
	case s.acc.IsVendor && s.acc.IsSubscriber:
		s.flow.reset()
		s.setState(StateSelectDashboard)
		return s.buttons("Welcome back! Which dashboard do you want?", []Button{
			{ID: "btn_0", Label: "🛍 Vendor"},
			{ID: "btn_1", Label: "🛒 Customer"},
		})
	case s.acc.IsVendor:
		return e.goHome(s, "")
	case s.acc.IsSubscriber:
		return e.goHome(s, "")
	default:
		s.flow.reset()
		s.setState(StateWelcome)
		return e.sendWelcome(s)
	}
}

func (s *session) setState(state string) {
	if s.convo.State != state && s.e.metrics != nil {
		s.e.metrics.StateTransitions.WithLabelValues(state).Inc()
	}
	s.convo.State = state
}

// reply sends text, logging rather than propagating delivery failures.
func (s *session) reply(body string) {
	if err := s.e.gateway.SendText(s.ctx, s.acc.Phone, body); err != nil {
		s.e.logger.Warn("send text", "phone", s.acc.Phone, "error", err)
		s.e.countError("gateway")
	}
}

func (s *session) buttons(body string, buttons []Button) error {
	if err := s.e.gateway.SendButtons(s.ctx, s.acc.Phone, body, buttons); err != nil {
		s.e.logger.Warn("send buttons", "phone", s.acc.Phone, "error", err)
		s.e.countError("gateway")
	}
	return nil
}

func (s *session) list(body, action string, sections []ListSection) error {
	if err := s.e.gateway.SendList(s.ctx, s.acc.Phone, body, action, sections); err != nil {
		s.e.logger.Warn("send list", "phone", s.acc.Phone, "error", err)
		s.e.countError("gateway")
	}
	return nil
}

// notify sends text to another identity than the session's.
func (e *Engine) notify(ctx context.Context, phone, body string) {
	if err := e.gateway.SendText(ctx, phone, body); err != nil {
		e.logger.Warn("notify", "phone", phone, "error", err)
		e.countError("gateway")
	}
}

func (e *Engine) countReward(rule string) {
	if e.metrics != nil {
		e.metrics.RewardsGranted.WithLabelValues(rule).Inc()
	}
}

func (e *Engine) countError(component string) {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues(component).Inc()
	}
}

// identityLocks serializes event processing per phone identity.
type identityLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *identityLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
