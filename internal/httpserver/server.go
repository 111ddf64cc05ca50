package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketbot/internal/broadcast"
	"marketbot/internal/engine"
	"marketbot/internal/metrics"
	"marketbot/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies exposes the collaborators admin handlers act on.
type Dependencies struct {
	Store      repo.Store
	Dispatcher *broadcast.Dispatcher
	Gateway    engine.Gateway
}

// Server wraps an http.Server with health, metrics and the moderation API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
}

// New creates a new HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies) *Server {
	server := &Server{
		logger:  logger.With("component", "http"),
		metrics: metricRegistry,
		deps:    deps,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /admin/promotions/{id}/approve", server.handlePromotionDecision(repo.PromoApproved))
	mux.HandleFunc("POST /admin/promotions/{id}/reject", server.handlePromotionDecision(repo.PromoRejected))
	mux.HandleFunc("POST /admin/promotions/{id}/broadcast", server.handleBroadcast)
	mux.HandleFunc("POST /admin/vendors/{phone}/verify", server.handleVendorDecision(repo.VerificationVerified))
	mux.HandleFunc("POST /admin/vendors/{phone}/reject", server.handleVendorDecision(repo.VerificationRejected))
	mux.HandleFunc("POST /admin/payments/{reference}/confirm", server.handlePaymentConfirm)
	mux.HandleFunc("GET /admin/settings/vendor-lock", server.handleVendorLockGet)
	mux.HandleFunc("PUT /admin/settings/vendor-lock", server.handleVendorLockSet)
	mux.HandleFunc("POST /admin/tickets/{id}/resolve", server.handleTicketResolve)
	mux.HandleFunc("GET /admin/stats", server.handleStats)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePromotionDecision(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		promo, err := s.deps.Store.GetPromotion(r.Context(), id)
		if err != nil {
			s.notFoundOr500(w, "promotion", err)
			return
		}
		if promo.Status != repo.PromoPending {
			http.Error(w, "promotion is not pending", http.StatusConflict)
			return
		}
		if err := s.deps.Store.SetPromotionStatus(r.Context(), id, status, time.Now()); err != nil {
			s.logger.Error("set promotion status", "id", id, "error", err)
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}

		s.notifyVendor(r.Context(), promo.VendorID, promotionNotice(promo.Title, status))
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
	}
}

func promotionNotice(title, status string) string {
	if status == repo.PromoApproved {
		return fmt.Sprintf("✅ Your promotion *%s* was approved! It will be broadcast shortly.", title)
	}
	return fmt.Sprintf("❌ Your promotion *%s* was rejected. Reply *support* from your menu if you'd like details.", title)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	done, err := s.deps.Store.HasCompletedBroadcast(r.Context(), id)
	if err != nil {
		s.logger.Error("check broadcast history", "id", id, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if done {
		http.Error(w, "promotion was already broadcast", http.StatusConflict)
		return
	}

	// The claim is synchronous so a duplicate dispatch fails here with a
	// clean conflict; the fan-out itself runs in the background and outlives
	// the request.
	if err := s.deps.Store.ClaimPromotionForBroadcast(r.Context(), id); err != nil {
		if errors.Is(err, repo.ErrAlreadyClaimed) {
			http.Error(w, "promotion is not approved or already dispatched", http.StatusConflict)
			return
		}
		s.logger.Error("claim promotion", "id", id, "error", err)
		http.Error(w, "claim failed", http.StatusInternalServerError)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		result, err := s.deps.Dispatcher.DispatchClaimed(ctx, id)
		if err != nil {
			s.logger.Error("dispatch broadcast", "id", id, "error", err)
			return
		}
		s.logger.Info("broadcast dispatched", "id", id, "sent", result.Sent, "failed", result.Failed)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "dispatching"})
}

func (s *Server) handleVendorDecision(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := r.PathValue("phone")
		acc, err := s.deps.Store.GetAccountByPhone(r.Context(), phone)
		if err != nil {
			s.notFoundOr500(w, "account", err)
			return
		}
		if acc.VerificationStatus != repo.VerificationPending {
			http.Error(w, "account is not pending verification", http.StatusConflict)
			return
		}
		acc.VerificationStatus = status
		if err := s.deps.Store.UpdateAccount(r.Context(), acc); err != nil {
			s.logger.Error("update verification", "phone", phone, "error", err)
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}

		if status == repo.VerificationVerified {
			s.notify(r.Context(), acc.Phone, "🎉 You're verified! You can now promote products from your vendor menu.")
		} else {
			s.notify(r.Context(), acc.Phone, "❌ Your verification document was rejected. Open your vendor menu to upload a new one.")
		}
		writeJSON(w, http.StatusOK, map[string]string{"phone": phone, "verification": status})
	}
}

func (s *Server) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")
	pay, err := s.deps.Store.GetPaymentByReference(r.Context(), reference)
	if err != nil {
		s.notFoundOr500(w, "payment", err)
		return
	}
	if err := s.deps.Store.CompletePayment(r.Context(), pay.ID, time.Now()); err != nil {
		s.logger.Error("complete payment", "reference", reference, "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	s.notifyVendor(r.Context(), pay.AccountID, fmt.Sprintf("✅ Payment %s confirmed. Your promotion is queued for review.", reference))
	writeJSON(w, http.StatusOK, map[string]string{"reference": reference, "status": repo.PaymentCompleted})
}

func (s *Server) handleVendorLockGet(w http.ResponseWriter, r *http.Request) {
	val, ok, err := s.deps.Store.GetSetting(r.Context(), repo.SettingVendorLock)
	if err != nil {
		s.logger.Error("read vendor lock", "error", err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	enabled := ok && (val == "on" || val == "true" || val == "1")
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleVendorLockSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	val := "off"
	if body.Enabled {
		val = "on"
	}
	if err := s.deps.Store.SetSetting(r.Context(), repo.SettingVendorLock, val); err != nil {
		s.logger.Error("set vendor lock", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) handleTicketResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Store.ResolveSupportTicket(r.Context(), id); err != nil {
		s.notFoundOr500(w, "ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "resolved"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	subscribers, err := s.deps.Store.ListActiveSubscribers(r.Context())
	if err != nil {
		s.logger.Error("stats subscribers", "error", err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	approved, err := s.deps.Store.ListApprovedPromotions(r.Context(), 1000)
	if err != nil {
		s.logger.Error("stats promotions", "error", err)
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"active_subscribers":  len(subscribers),
		"approved_promotions": len(approved),
	})
}

func (s *Server) notifyVendor(ctx context.Context, accountID, body string) {
	acc, err := s.deps.Store.GetAccountByID(ctx, accountID)
	if err != nil {
		s.logger.Warn("load account for notify", "id", accountID, "error", err)
		return
	}
	s.notify(ctx, acc.Phone, body)
}

func (s *Server) notify(ctx context.Context, phone, body string) {
	if s.deps.Gateway == nil {
		return
	}
	if err := s.deps.Gateway.SendText(ctx, phone, body); err != nil {
		s.logger.Warn("notify", "phone", phone, "error", err)
	}
}

func (s *Server) notFoundOr500(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, kind+" not found", http.StatusNotFound)
		return
	}
	s.logger.Error("load "+kind, "error", err)
	http.Error(w, "read failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing useful left to do.
		_ = err
	}
}
