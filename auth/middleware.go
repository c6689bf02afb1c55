package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user claims
	UserContextKey contextKey = "auth_user"
)

// Middleware provides HTTP authentication middleware
type Middleware struct {
	service *Service
	logger  *zap.SugaredLogger

	// Activity update debouncing
	activityMu     sync.Mutex
	lastActivity   map[string]time.Time
	activityWindow time.Duration
	lastSweep      time.Time
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service *Service, logger *zap.SugaredLogger) *Middleware {
	return &Middleware{
		service:        service,
		logger:         logger,
		lastActivity:   make(map[string]time.Time),
		activityWindow: 5 * time.Minute, // Only update activity every 5 minutes per session
	}
}

// RequireAuth is middleware that requires a valid JWT token backed by a
// live session
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			denyJSON(w, http.StatusUnauthorized, "unauthorized: missing token")
			return
		}

		claims, err := m.service.jwt.ValidateToken(token)
		if err != nil {
			if m.logger != nil {
				m.logger.Debugw("Token validation failed", "error", err)
			}
			denyJSON(w, http.StatusUnauthorized, "unauthorized: invalid token")
			return
		}

		// Verify session is still valid (not revoked)
		session, err := m.service.store.GetSession(r.Context(), claims.SessionID)
		if err != nil {
			denyJSON(w, http.StatusUnauthorized, "unauthorized: session not found")
			return
		}
		if !session.Valid() {
			denyJSON(w, http.StatusUnauthorized, "unauthorized: session expired or revoked")
			return
		}

		m.touchSession(claims.SessionID)

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequireGroupMember wraps RequireAuth and additionally checks the caller
// belongs to the group named by the {id} path value
func (m *Middleware) RequireGroupMember(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := UserFromContext(r.Context())
		groupID := r.PathValue("id")
		if groupID == "" || claims == nil {
			denyJSON(w, http.StatusForbidden, "forbidden")
			return
		}

		member, err := m.service.store.IsGroupMember(r.Context(), groupID, claims.UserID)
		if err != nil {
			if m.logger != nil {
				m.logger.Warnw("Failed to check group membership", "group_id", groupID, "error", err)
			}
			denyJSON(w, http.StatusForbidden, "forbidden")
			return
		}
		if !member {
			denyJSON(w, http.StatusForbidden, "forbidden: not a group member")
			return
		}

		next(w, r)
	})
}

// denyJSON writes an auth failure in the API's error envelope
func denyJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// touchSession updates session activity with debouncing
func (m *Middleware) touchSession(sessionID string) {
	m.activityMu.Lock()
	defer m.activityMu.Unlock()

	m.sweepActivityLocked()

	lastUpdate, ok := m.lastActivity[sessionID]
	if ok && time.Since(lastUpdate) < m.activityWindow {
		return // Skip update, too recent
	}

	m.lastActivity[sessionID] = time.Now()

	// Update in background to not block request
	go func() {
		if err := m.service.store.UpdateSessionActivity(context.Background(), sessionID); err != nil {
			if m.logger != nil {
				m.logger.Warnw("Failed to update session activity", "session_id", sessionID, "error", err)
			}
		}
	}()
}

// sweepActivityLocked evicts stale debounce entries so the map does not
// grow with every session ever seen. Runs at most once per window.
// Caller must hold activityMu.
func (m *Middleware) sweepActivityLocked() {
	if time.Since(m.lastSweep) < m.activityWindow {
		return
	}
	cutoff := time.Now().Add(-2 * m.activityWindow)
	for id, ts := range m.lastActivity {
		if ts.Before(cutoff) {
			delete(m.lastActivity, id)
		}
	}
	m.lastSweep = time.Now()
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return auth
}

// UserFromContext extracts authenticated user claims from request context
func UserFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(UserContextKey).(*Claims)
	return claims
}

// IsAuthenticated checks if the request has valid authentication
func IsAuthenticated(ctx context.Context) bool {
	return UserFromContext(ctx) != nil
}
