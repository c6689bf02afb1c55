package server

import (
	"io"
	"net/http"
)

// HandleShopifySync handles POST /api/groups/{id}/shopify/sync: enqueue a
// bulk sync for one resource (products/orders/customers).
func (s *Server) HandleShopifySync(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Resource string `json:"resource"`
	}
	if readJSON(w, r, &req) != nil {
		return
	}

	job, err := s.shopifySync.Enqueue(r.Context(), s.daemon.Queue(), r.PathValue("id"), req.Resource)
	if err != nil {
		handleError(w, s.logger, err, "failed to enqueue sync")
		return
	}

	s.logger.Infow("Sync enqueued", "job_id", job.ID, "resource", req.Resource)
	writeJSON(w, http.StatusAccepted, job)
}

// HandleShopifyWebhook handles POST /api/webhooks/shopify. Authenticated
// by the X-Shopify-Hmac-Sha256 header. Duplicate deliveries are
// acknowledged without re-processing.
func (s *Server) HandleShopifyWebhook(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	accepted, err := s.shopifyWH.Process(r.Context(),
		r.URL.Query().Get("group_id"),
		r.Header.Get("X-Shopify-Webhook-Id"),
		r.Header.Get("X-Shopify-Topic"),
		r.Header.Get("X-Shopify-Hmac-Sha256"),
		body)
	if err != nil {
		handleError(w, s.logger, err, "failed to process shopify webhook")
		return
	}

	status := "accepted"
	if !accepted {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
