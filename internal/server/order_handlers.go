package server

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"littlefidan/internal/app"
	"littlefidan/internal/domain"
)

type checkoutRequest struct {
	Items []app.CheckoutItem `json:"items"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.apiLimiter, "too many checkout requests") {
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.Checkout(r.Context(), user, req.Items)
	if err != nil {
		s.audit(r, "api.checkout", "fail", "user_id", user.ID, "reason", err.Error())
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.checkout", "success", "user_id", user.ID, "order_id", result.Order.ID)
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	orders, err := s.app.ListUserOrders(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": orders,
		"count": len(orders),
	})
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	order, err := s.app.GetUserOrder(r.Context(), user.ID, id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type webhookRequest struct {
	OrderRef string `json:"orderRef"`
	Status   string `json:"status"`
}

// handlePaymentWebhook accepts provider callbacks authenticated with the
// shared webhook secret. Replays of settled orders return 200 so the
// provider stops retrying.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	signature := r.Header.Get("X-Webhook-Signature")
	if subtle.ConstantTimeCompare([]byte(signature), []byte(s.webhookSecret)) != 1 {
		s.audit(r, "api.payment.webhook", "fail", "reason", "bad_signature")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var succeeded bool
	switch req.Status {
	case "paid":
		succeeded = true
	case "failed":
		succeeded = false
	default:
		writeError(w, http.StatusBadRequest, "status must be paid or failed")
		return
	}
	order, err := s.app.HandlePaymentEvent(r.Context(), req.OrderRef, succeeded)
	if err != nil {
		s.audit(r, "api.payment.webhook", "fail", "order_id", req.OrderRef, "reason", err.Error())
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "api.payment.webhook", "success", "order_id", order.ID, "status", string(order.Status))
	writeJSON(w, http.StatusOK, order)
}
