package server

import (
	"io"
	"net/http"
)

// maxWebhookBody bounds the raw body read for signature verification
const maxWebhookBody = 1 << 20

// HandlePaymentIntents handles POST /api/groups/{id}/payments/intents
func (s *Server) HandlePaymentIntents(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	record, err := s.payments.CreatePaymentIntent(r.Context(), r.PathValue("id"), actorID(r), req.Amount, req.Currency)
	if err != nil {
		handleError(w, s.logger, err, "failed to create payment intent")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// HandlePaymentCustomers handles POST /api/groups/{id}/payments/customers
func (s *Server) HandlePaymentCustomers(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	customer, err := s.payments.CreateCustomer(r.Context(), r.PathValue("id"), actorID(r), req.Email, req.Name)
	if err != nil {
		handleError(w, s.logger, err, "failed to create customer")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    customer.ID,
		"email": customer.Email,
	})
}

// HandlePaymentRecords handles GET /api/groups/{id}/payments
func (s *Server) HandlePaymentRecords(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	records, err := s.payments.ListRecords(r.Context(), r.PathValue("id"),
		parseIntQueryParam(r, "limit", defaultListLimit, 1, maxListLimit))
	if err != nil {
		handleError(w, s.logger, err, "failed to list payment records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleStripeWebhook handles POST /api/webhooks/stripe. Authenticated by
// the stripe-signature header, not by session.
func (s *Server) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	groupID := r.URL.Query().Get("group_id")
	if err := s.payments.HandleWebhook(r.Context(), groupID, body, r.Header.Get("Stripe-Signature")); err != nil {
		handleError(w, s.logger, err, "failed to process stripe webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
