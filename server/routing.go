package server

import (
	"net/http"
	"strings"
)

// setupRoutes registers all HTTP handlers. Group-scoped routes go through
// RequireGroupMember, which checks the JWT, the session, and the caller's
// membership of the {id} group. Webhook routes are authenticated by
// signature, not by session.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))

	// Auth
	s.mux.HandleFunc("/api/auth/signup", s.corsMiddleware(s.HandleSignup))
	s.mux.HandleFunc("/api/auth/login", s.corsMiddleware(s.HandleLogin))
	s.mux.HandleFunc("/api/auth/refresh", s.corsMiddleware(s.HandleRefresh))
	s.mux.HandleFunc("/api/auth/logout", s.corsMiddleware(s.authMW.RequireAuth(s.HandleLogout)))
	s.mux.HandleFunc("/api/auth/magic-link", s.corsMiddleware(s.HandleMagicLinkRequest))
	s.mux.HandleFunc("/api/auth/magic-link/redeem", s.corsMiddleware(s.HandleMagicLinkRedeem))
	s.mux.HandleFunc("/api/auth/2fa/setup", s.corsMiddleware(s.authMW.RequireAuth(s.HandleTOTPSetup)))
	s.mux.HandleFunc("/api/auth/2fa/verify", s.corsMiddleware(s.authMW.RequireAuth(s.HandleTOTPVerify)))
	s.mux.HandleFunc("/api/auth/sessions", s.corsMiddleware(s.authMW.RequireAuth(s.HandleSessions)))
	s.mux.HandleFunc("/api/auth/sessions/{sid}", s.corsMiddleware(s.authMW.RequireAuth(s.HandleRevokeSession)))

	// Groups
	s.mux.HandleFunc("/api/groups", s.corsMiddleware(s.authMW.RequireAuth(s.HandleGroups)))
	s.mux.HandleFunc("/api/groups/{id}", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleGroup)))

	// Ontology, scoped by group
	s.mux.HandleFunc("/api/groups/{id}/things", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleThings)))
	s.mux.HandleFunc("/api/groups/{id}/things/{thing}", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleThing)))
	s.mux.HandleFunc("/api/groups/{id}/things/{thing}/status", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleThingStatus)))
	s.mux.HandleFunc("/api/groups/{id}/things/{thing}/neighbors", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleThingNeighbors)))
	s.mux.HandleFunc("/api/groups/{id}/people", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandlePeople)))
	s.mux.HandleFunc("/api/groups/{id}/people/{person}", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandlePerson)))
	s.mux.HandleFunc("/api/groups/{id}/connections", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleConnections)))
	s.mux.HandleFunc("/api/groups/{id}/connections/{conn}", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleConnection)))
	s.mux.HandleFunc("/api/groups/{id}/events", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleEvents)))
	s.mux.HandleFunc("/api/groups/{id}/knowledge", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleKnowledge)))
	s.mux.HandleFunc("/api/groups/{id}/knowledge/search", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleKnowledgeSearch)))
	s.mux.HandleFunc("/api/groups/{id}/knowledge/{chunk}", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleKnowledgeChunk)))

	// Payments
	s.mux.HandleFunc("/api/groups/{id}/payments/intents", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandlePaymentIntents)))
	s.mux.HandleFunc("/api/groups/{id}/payments/customers", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandlePaymentCustomers)))
	s.mux.HandleFunc("/api/groups/{id}/payments", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandlePaymentRecords)))

	// Shopify
	s.mux.HandleFunc("/api/groups/{id}/shopify/sync", s.corsMiddleware(s.authMW.RequireGroupMember(s.HandleShopifySync)))

	// Webhooks (signature-authenticated)
	s.mux.HandleFunc("/api/webhooks/stripe", s.corsMiddleware(s.HandleStripeWebhook))
	s.mux.HandleFunc("/api/webhooks/shopify", s.corsMiddleware(s.HandleShopifyWebhook))

	// Job queue introspection
	s.mux.HandleFunc("/api/jobs", s.corsMiddleware(s.authMW.RequireAuth(s.HandleJobs)))
	s.mux.HandleFunc("/api/jobs/{job}", s.corsMiddleware(s.authMW.RequireAuth(s.HandleJob)))
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed checks an Origin header against server.allowed_origins.
// Prefix matching allows any port on an allowed host.
func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// HandleHealth reports process liveness and queue depth
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet) {
		return
	}

	stats, err := s.daemon.Queue().GetStats(r.Context())
	if err != nil {
		s.logger.Warnw("Failed to read queue stats for health check", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"jobs":   stats,
	})
}
