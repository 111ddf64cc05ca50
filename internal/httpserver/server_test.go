package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"marketbot/internal/broadcast"
	"marketbot/internal/engine"
	"marketbot/internal/repo"
)

// adminStore overrides just the methods the routes under test touch; the
// embedded nil interface panics loudly if a handler reaches further.
type adminStore struct {
	repo.Store
	mu         sync.Mutex
	promos     map[string]*repo.Promotion
	accounts   map[string]*repo.Account
	payments   map[string]*repo.Payment
	settings   map[string]string
	resolved   []string
	broadcasts map[string]bool
	records    map[string]*repo.Broadcast
	finished   chan struct{}
}

func newAdminStore() *adminStore {
	return &adminStore{
		promos:     make(map[string]*repo.Promotion),
		accounts:   make(map[string]*repo.Account),
		payments:   make(map[string]*repo.Payment),
		settings:   make(map[string]string),
		broadcasts: make(map[string]bool),
		records:    make(map[string]*repo.Broadcast),
		finished:   make(chan struct{}),
	}
}

func (s *adminStore) GetPromotion(_ context.Context, id string) (*repo.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.promos[id]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

func (s *adminStore) SetPromotionStatus(_ context.Context, id, status string, at time.Time) error {
	p, ok := s.promos[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Status = status
	if status == repo.PromoApproved {
		p.ApprovedAt = &at
	}
	return nil
}

func (s *adminStore) GetAccountByID(_ context.Context, id string) (*repo.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, repo.ErrNotFound
}

func (s *adminStore) GetAccountByPhone(_ context.Context, phone string) (*repo.Account, error) {
	for _, a := range s.accounts {
		if a.Phone == phone {
			return a, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *adminStore) UpdateAccount(_ context.Context, acc *repo.Account) error {
	s.accounts[acc.ID] = acc
	return nil
}

func (s *adminStore) GetPaymentByReference(_ context.Context, reference string) (*repo.Payment, error) {
	for _, p := range s.payments {
		if p.Reference == reference {
			return p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *adminStore) CompletePayment(_ context.Context, id string, at time.Time) error {
	p, ok := s.payments[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Status = repo.PaymentCompleted
	p.CompletedAt = &at
	return nil
}

func (s *adminStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *adminStore) SetSetting(_ context.Context, key, value string) error {
	s.settings[key] = value
	return nil
}

func (s *adminStore) ResolveSupportTicket(_ context.Context, id string) error {
	s.resolved = append(s.resolved, id)
	return nil
}

func (s *adminStore) HasCompletedBroadcast(_ context.Context, promotionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcasts[promotionID], nil
}

func (s *adminStore) ClaimPromotionForBroadcast(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promos[id]
	if !ok || p.Status != repo.PromoApproved {
		return repo.ErrAlreadyClaimed
	}
	p.Status = repo.PromoBroadcasting
	return nil
}

func (s *adminStore) FinishPromotionBroadcast(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promos[id]
	if !ok {
		return repo.ErrNotFound
	}
	p.Status = repo.PromoBroadcasted
	p.BroadcastedAt = &at
	close(s.finished)
	return nil
}

func (s *adminStore) ListActiveSubscribers(context.Context) ([]repo.Account, error) {
	return []repo.Account{
		{ID: "c1", Phone: "2349001", IsSubscriber: true, IsActive: true, CurrentMode: repo.ModeSubscriber, Interests: "Fashion"},
	}, nil
}

func (s *adminStore) InsertBroadcast(_ context.Context, b repo.Broadcast) (*repo.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = fmt.Sprintf("b%d", len(s.records)+1)
	b.Status = repo.BroadcastInProgress
	s.records[b.ID] = &b
	return &b, nil
}

func (s *adminStore) CompleteBroadcast(_ context.Context, id string, total, sent, failed int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return repo.ErrNotFound
	}
	rec.TotalRecipients = total
	rec.SentCount = sent
	rec.FailedCount = failed
	rec.Status = repo.BroadcastCompleted
	rec.CompletedAt = &at
	s.broadcasts[rec.PromotionID] = true
	return nil
}

func (s *adminStore) promoStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promos[id].Status
}

type notifyGateway struct {
	mu    sync.Mutex
	texts map[string][]string
}

func (g *notifyGateway) SendText(_ context.Context, to, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.texts == nil {
		g.texts = make(map[string][]string)
	}
	g.texts[to] = append(g.texts[to], body)
	return nil
}

func (g *notifyGateway) sentTo(phone string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.texts[phone])
}

func (g *notifyGateway) SendButtons(ctx context.Context, to, body string, _ []engine.Button) error {
	return g.SendText(ctx, to, body)
}

func (g *notifyGateway) SendList(context.Context, string, string, string, []engine.ListSection) error {
	return nil
}

func (g *notifyGateway) SendImage(context.Context, string, string, string) error { return nil }
func (g *notifyGateway) SendVideo(context.Context, string, string, string) error { return nil }

func newTestServer(store *adminStore, gateway *notifyGateway) *Server {
	logger := slog.New(slog.NewTextHandler(nullWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	return New(":0", logger, nil, Dependencies{Store: store, Gateway: gateway})
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(newAdminStore(), &notifyGateway{})
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPromotionApproveNotifiesVendor(t *testing.T) {
	store := newAdminStore()
	gateway := &notifyGateway{}
	store.promos["p1"] = &repo.Promotion{ID: "p1", VendorID: "v1", Title: "Sneakers", Status: repo.PromoPending}
	store.accounts["v1"] = &repo.Account{ID: "v1", Phone: "2348001"}
	s := newTestServer(store, gateway)

	rec := do(t, s, http.MethodPost, "/admin/promotions/p1/approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if store.promos["p1"].Status != repo.PromoApproved {
		t.Fatalf("status = %q, want approved", store.promos["p1"].Status)
	}
	if len(gateway.texts["2348001"]) != 1 {
		t.Fatal("vendor was not notified")
	}
}

func TestPromotionDecisionRequiresPending(t *testing.T) {
	store := newAdminStore()
	store.promos["p1"] = &repo.Promotion{ID: "p1", VendorID: "v1", Status: repo.PromoApproved}
	s := newTestServer(store, &notifyGateway{})

	rec := do(t, s, http.MethodPost, "/admin/promotions/p1/reject", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if store.promos["p1"].Status != repo.PromoApproved {
		t.Fatal("non-pending promotion was mutated")
	}
}

func TestPromotionDecisionUnknownID(t *testing.T) {
	s := newTestServer(newAdminStore(), &notifyGateway{})
	rec := do(t, s, http.MethodPost, "/admin/promotions/nope/approve", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBroadcastRejectsRepeat(t *testing.T) {
	store := newAdminStore()
	store.broadcasts["p1"] = true
	s := newTestServer(store, &notifyGateway{})

	rec := do(t, s, http.MethodPost, "/admin/promotions/p1/broadcast", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for repeated broadcast", rec.Code)
	}
}

func TestBroadcastClaimsThenRunsInBackground(t *testing.T) {
	store := newAdminStore()
	store.promos["p1"] = &repo.Promotion{
		ID: "p1", VendorID: "v1", Title: "Sneakers", Category: "Fashion",
		TargetGender: "All", Price: 100, ContactInfo: "0803", Caption: "cap",
		Status: repo.PromoApproved,
	}
	store.accounts["v1"] = &repo.Account{ID: "v1", Phone: "2348005"}
	gateway := &notifyGateway{}
	logger := slog.New(slog.NewTextHandler(nullWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	dispatcher := broadcast.New(store, gateway, logger, nil)
	s := New(":0", logger, nil, Dependencies{Store: store, Dispatcher: dispatcher, Gateway: gateway})

	rec := do(t, s, http.MethodPost, "/admin/promotions/p1/broadcast", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}

	select {
	case <-store.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("background fan-out did not complete")
	}
	if got := store.promoStatus("p1"); got != repo.PromoBroadcasted {
		t.Fatalf("promotion status = %q, want broadcasted", got)
	}
	if gateway.sentTo("2349001") == 0 {
		t.Fatal("subscriber received nothing")
	}

	// The claim was consumed; a repeat dispatch conflicts.
	rec = do(t, s, http.MethodPost, "/admin/promotions/p1/broadcast", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat status = %d, want 409", rec.Code)
	}
}

func TestVendorDecision(t *testing.T) {
	store := newAdminStore()
	gateway := &notifyGateway{}
	store.accounts["v1"] = &repo.Account{ID: "v1", Phone: "2348002", VerificationStatus: repo.VerificationPending}
	s := newTestServer(store, gateway)

	rec := do(t, s, http.MethodPost, "/admin/vendors/2348002/verify", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if store.accounts["v1"].VerificationStatus != repo.VerificationVerified {
		t.Fatalf("verification = %q, want verified", store.accounts["v1"].VerificationStatus)
	}
	if len(gateway.texts["2348002"]) != 1 {
		t.Fatal("vendor was not notified")
	}

	// A settled decision is not re-applied.
	rec = do(t, s, http.MethodPost, "/admin/vendors/2348002/reject", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat decision status = %d, want 409", rec.Code)
	}
	if store.accounts["v1"].VerificationStatus != repo.VerificationVerified {
		t.Fatal("settled verification was mutated")
	}
}

func TestPaymentConfirm(t *testing.T) {
	store := newAdminStore()
	gateway := &notifyGateway{}
	store.payments["pay1"] = &repo.Payment{ID: "pay1", AccountID: "v1", Reference: "PAY-abc123", Status: repo.PaymentPending}
	store.accounts["v1"] = &repo.Account{ID: "v1", Phone: "2348003"}
	s := newTestServer(store, gateway)

	rec := do(t, s, http.MethodPost, "/admin/payments/PAY-abc123/confirm", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if store.payments["pay1"].Status != repo.PaymentCompleted {
		t.Fatalf("payment status = %q, want completed", store.payments["pay1"].Status)
	}

	rec = do(t, s, http.MethodPost, "/admin/payments/PAY-unknown/confirm", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown reference status = %d, want 404", rec.Code)
	}
}

func TestVendorLockRoundTrip(t *testing.T) {
	store := newAdminStore()
	s := newTestServer(store, &notifyGateway{})

	rec := do(t, s, http.MethodGet, "/admin/settings/vendor-lock", "")
	var state map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state["enabled"] {
		t.Fatal("lock enabled by default")
	}

	rec = do(t, s, http.MethodPut, "/admin/settings/vendor-lock", `{"enabled": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.settings[repo.SettingVendorLock] != "on" {
		t.Fatalf("setting = %q, want on", store.settings[repo.SettingVendorLock])
	}

	rec = do(t, s, http.MethodGet, "/admin/settings/vendor-lock", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state["enabled"] {
		t.Fatal("lock not reported enabled after PUT")
	}
}

func TestTicketResolve(t *testing.T) {
	store := newAdminStore()
	s := newTestServer(store, &notifyGateway{})

	rec := do(t, s, http.MethodPost, "/admin/tickets/t1/resolve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(store.resolved) != 1 || store.resolved[0] != "t1" {
		t.Fatalf("resolved = %v, want [t1]", store.resolved)
	}
}
