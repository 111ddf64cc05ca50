package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"marketbot/internal/engine"
	"marketbot/internal/repo"
)

type fakeStore struct {
	mu          sync.Mutex
	promos      map[string]*repo.Promotion
	accounts    map[string]*repo.Account
	subscribers []repo.Account
	broadcasts  map[string]*repo.Broadcast
	seq         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		promos:     make(map[string]*repo.Promotion),
		accounts:   make(map[string]*repo.Account),
		broadcasts: make(map[string]*repo.Broadcast),
	}
}

func (f *fakeStore) GetPromotion(_ context.Context, id string) (*repo.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.promos[id]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) ClaimPromotionForBroadcast(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[id]
	if !ok || p.Status != repo.PromoApproved {
		return repo.ErrAlreadyClaimed
	}
	p.Status = repo.PromoBroadcasting
	return nil
}

func (f *fakeStore) FinishPromotionBroadcast(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Status = repo.PromoBroadcasted
	p.BroadcastedAt = &at
	return nil
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (*repo.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.accounts[id]; ok {
		return acc, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) ListActiveSubscribers(_ context.Context) ([]repo.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers, nil
}

func (f *fakeStore) InsertBroadcast(_ context.Context, b repo.Broadcast) (*repo.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	b.ID = fmt.Sprintf("bcast-%d", f.seq)
	b.Status = repo.BroadcastInProgress
	f.broadcasts[b.ID] = &b
	return &b, nil
}

func (f *fakeStore) CompleteBroadcast(_ context.Context, id string, total, sent, failed int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.broadcasts[id]
	if !ok {
		return repo.ErrNotFound
	}
	b.TotalRecipients = total
	b.SentCount = sent
	b.FailedCount = failed
	b.Status = repo.BroadcastCompleted
	b.CompletedAt = &at
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	texts    map[string][]string
	buttons  map[string][]string
	images   map[string]int
	failText map[string]bool
	failBtns map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		texts:    make(map[string][]string),
		buttons:  make(map[string][]string),
		images:   make(map[string]int),
		failText: make(map[string]bool),
		failBtns: make(map[string]bool),
	}
}

func (g *fakeGateway) SendText(_ context.Context, to, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failText[to] {
		return errors.New("recipient unreachable")
	}
	g.texts[to] = append(g.texts[to], body)
	return nil
}

func (g *fakeGateway) SendButtons(_ context.Context, to, body string, buttons []engine.Button) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failBtns[to] {
		return errors.New("recipient unreachable")
	}
	for _, b := range buttons {
		g.buttons[to] = append(g.buttons[to], b.ID)
	}
	g.texts[to] = append(g.texts[to], body)
	return nil
}

func (g *fakeGateway) SendImage(_ context.Context, to, _, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images[to]++
	g.texts[to] = append(g.texts[to], caption)
	return nil
}

func (g *fakeGateway) SendVideo(_ context.Context, to, _, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts[to] = append(g.texts[to], caption)
	return nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func subscriber(phone, gender, interests string) repo.Account {
	return repo.Account{
		ID:           "acc-" + phone,
		Phone:        phone,
		IsSubscriber: true,
		IsActive:     true,
		CurrentMode:  repo.ModeSubscriber,
		Gender:       gender,
		Interests:    interests,
	}
}

func seedPromotion(store *fakeStore, status string) *repo.Promotion {
	promo := &repo.Promotion{
		ID:           "promo-1",
		VendorID:     "vendor-1",
		Title:        "Sneakers",
		Category:     "Fashion",
		TargetGender: "All",
		Price:        15000,
		ContactInfo:  "08030000000",
		Caption:      "🔥 Clean kicks!",
		Status:       status,
	}
	store.promos[promo.ID] = promo
	store.accounts["vendor-1"] = &repo.Account{ID: "vendor-1", Phone: "2340001", IsVendor: true, CurrentMode: repo.ModeVendor}
	return promo
}

func TestDispatchFansOutToMatchingSubscribers(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	promo := seedPromotion(store, repo.PromoApproved)
	store.subscribers = []repo.Account{
		subscriber("1001", "", "Fashion,Tech"),
		subscriber("1002", "Male", "Food"),          // no interest overlap
		subscriber("1003", "Female", "fashion"),     // case-insensitive overlap
		{ID: "acc-1004", Phone: "1004", IsSubscriber: true, IsActive: true, CurrentMode: repo.ModeVendor, Interests: "Fashion"}, // on vendor side
	}

	d := New(store, gateway, testLogger(t), nil)
	res, err := d.Dispatch(context.Background(), promo.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if res.Total != 2 || res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v, want total 2 sent 2 failed 0", res)
	}
	for _, phone := range []string{"1001", "1003"} {
		if len(gateway.buttons[phone]) == 0 {
			t.Errorf("recipient %s got no buy button", phone)
		}
		if got := gateway.buttons[phone][0]; got != engine.BuyButtonID(promo.ID) {
			t.Errorf("button id = %q, want %q", got, engine.BuyButtonID(promo.ID))
		}
	}
	if len(gateway.texts["1002"]) != 0 {
		t.Error("non-matching subscriber received the broadcast")
	}
	if len(gateway.texts["1004"]) != 0 {
		t.Error("vendor-mode account received the broadcast")
	}

	if promo.Status != repo.PromoBroadcasted {
		t.Fatalf("promotion status = %q, want broadcasted", promo.Status)
	}
	if len(store.broadcasts) != 1 {
		t.Fatalf("broadcast records = %d, want 1", len(store.broadcasts))
	}
	for _, b := range store.broadcasts {
		if b.Status != repo.BroadcastCompleted || b.SentCount != 2 || b.FailedCount != 0 {
			t.Fatalf("broadcast record = %+v, want completed 2/0", b)
		}
	}

	// Vendor receives the completion notice.
	if len(gateway.texts["2340001"]) == 0 {
		t.Fatal("vendor got no completion notice")
	}
}

func TestDispatchClaimsPromotionExactlyOnce(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	promo := seedPromotion(store, repo.PromoApproved)
	store.subscribers = []repo.Account{subscriber("1001", "", "Fashion")}

	d := New(store, gateway, testLogger(t), nil)
	if _, err := d.Dispatch(context.Background(), promo.ID); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	recordsBefore := len(store.broadcasts)
	sendsBefore := len(gateway.texts["1001"])

	_, err := d.Dispatch(context.Background(), promo.ID)
	if !errors.Is(err, repo.ErrAlreadyClaimed) {
		t.Fatalf("second dispatch error = %v, want ErrAlreadyClaimed", err)
	}
	if len(store.broadcasts) != recordsBefore {
		t.Fatal("second dispatch created a broadcast record")
	}
	if len(gateway.texts["1001"]) != sendsBefore {
		t.Fatal("second dispatch sent messages")
	}
}

func TestDispatchRejectsPendingPromotion(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	promo := seedPromotion(store, repo.PromoPending)

	d := New(store, gateway, testLogger(t), nil)
	_, err := d.Dispatch(context.Background(), promo.ID)
	if !errors.Is(err, repo.ErrAlreadyClaimed) {
		t.Fatalf("error = %v, want ErrAlreadyClaimed for unapproved promotion", err)
	}
}

func TestDispatchAccountsForEveryRecipient(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	promo := seedPromotion(store, repo.PromoApproved)
	for i := 0; i < 20; i++ {
		store.subscribers = append(store.subscribers, subscriber(fmt.Sprintf("2%03d", i), "", "Fashion"))
	}
	gateway.failBtns["2003"] = true
	gateway.failBtns["2011"] = true

	d := New(store, gateway, testLogger(t), nil)
	res, err := d.Dispatch(context.Background(), promo.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if res.Sent+res.Failed != res.Total {
		t.Fatalf("sent %d + failed %d != total %d", res.Sent, res.Failed, res.Total)
	}
	if res.Failed != 2 {
		t.Fatalf("failed = %d, want 2", res.Failed)
	}
	// One bad recipient never blocks the rest of the pass.
	if res.Sent != 18 {
		t.Fatalf("sent = %d, want 18", res.Sent)
	}
	if promo.Status != repo.PromoBroadcasted {
		t.Fatalf("promotion status = %q, want broadcasted despite failures", promo.Status)
	}
}

func TestDispatchSendsMediaWithFollowUpButton(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	promo := seedPromotion(store, repo.PromoApproved)
	ref, kind := "media-ref-1", "image"
	promo.MediaRef = &ref
	promo.MediaType = &kind
	store.subscribers = []repo.Account{subscriber("3001", "", "Fashion")}

	d := New(store, gateway, testLogger(t), nil)
	res, err := d.Dispatch(context.Background(), promo.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("sent = %d, want 1", res.Sent)
	}
	if gateway.images["3001"] != 1 {
		t.Fatalf("images = %d, want 1", gateway.images["3001"])
	}
	if len(gateway.buttons["3001"]) != 1 {
		t.Fatalf("buy buttons = %d, want 1", len(gateway.buttons["3001"]))
	}
}

func TestMatches(t *testing.T) {
	base := func() *repo.Promotion {
		return &repo.Promotion{Category: "Fashion", TargetGender: "All"}
	}
	cases := []struct {
		name  string
		promo func() *repo.Promotion
		acc   repo.Account
		want  bool
	}{
		{
			name:  "no interests and general category reach everyone",
			promo: func() *repo.Promotion { p := base(); p.Category = "General"; return p },
			acc:   subscriber("1", "", ""),
			want:  true,
		},
		{
			name:  "general among several categories still matches",
			promo: func() *repo.Promotion { p := base(); p.Category = "Fashion,General"; return p },
			acc:   subscriber("1", "", "Food"),
			want:  true,
		},
		{
			name:  "interest overlap is case-insensitive",
			promo: base,
			acc:   subscriber("1", "", "fashion,tech"),
			want:  true,
		},
		{
			name:  "no overlap and no general",
			promo: base,
			acc:   subscriber("1", "", "Food"),
			want:  false,
		},
		{
			name:  "empty interests without general",
			promo: base,
			acc:   subscriber("1", "", ""),
			want:  false,
		},
		{
			name:  "gender mismatch excluded",
			promo: func() *repo.Promotion { p := base(); p.TargetGender = "Male"; return p },
			acc:   subscriber("1", "Female", "Fashion"),
			want:  false,
		},
		{
			name:  "unset gender passes a targeted promotion",
			promo: func() *repo.Promotion { p := base(); p.TargetGender = "Male"; return p },
			acc:   subscriber("1", "", "Fashion"),
			want:  true,
		},
		{
			name:  "matching gender passes",
			promo: func() *repo.Promotion { p := base(); p.TargetGender = "female"; return p },
			acc:   subscriber("1", "Female", "Fashion"),
			want:  true,
		},
		{
			name: "vendor mode never receives",
			promo: func() *repo.Promotion {
				p := base()
				p.Category = "General"
				return p
			},
			acc: repo.Account{CurrentMode: repo.ModeVendor, Interests: "Fashion"},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := tc.acc
			if got := Matches(tc.promo(), &acc); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComposeMessage(t *testing.T) {
	promo := &repo.Promotion{Caption: "🔥 Kicks!", Price: 15000, ContactInfo: "0803"}
	got := ComposeMessage(promo)
	want := "🔥 Kicks!\n\n💰 Price: ₦15000\n📞 Contact: 0803"
	if got != want {
		t.Errorf("ComposeMessage = %q, want %q", got, want)
	}

	promo.Negotiable = true
	if got := ComposeMessage(promo); !strings.Contains(got, "Price: Negotiable") {
		t.Errorf("negotiable footer missing: %q", got)
	}

	promo.Negotiable = false
	promo.Price = 0
	if got := ComposeMessage(promo); !strings.Contains(got, "Price: Free") {
		t.Errorf("free footer missing: %q", got)
	}
}
