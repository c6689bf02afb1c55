package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfold/sixfold/config"
	qt "github.com/sixfold/sixfold/internal/testing"
)

func newTestMiddleware(t *testing.T) *Middleware {
	t.Helper()

	cfg := &config.AuthConfig{
		JWTSecret:      "test-secret",
		TokenExpiry:    "15m",
		RefreshExpiry:  "720h",
		MinPasswordLen: 10,
	}
	jwtManager, err := NewJWTManager(cfg)
	require.NoError(t, err)

	store := NewStore(qt.CreateMigratedTestDB(t))
	return NewMiddleware(NewService(store, jwtManager, nil, cfg, nil), nil)
}

func TestRequireAuthRejectsInErrorEnvelope(t *testing.T) {
	mw := newTestMiddleware(t)
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	})

	for name, token := range map[string]string{
		"missing token": "",
		"garbage token": "not-a-jwt",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), name)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), name)
		assert.NotEmpty(t, body["error"], name)
	}
}

func TestActivityDebounceEvictsStaleSessions(t *testing.T) {
	mw := &Middleware{
		lastActivity:   make(map[string]time.Time),
		activityWindow: time.Minute,
	}
	mw.lastActivity["stale"] = time.Now().Add(-time.Hour)
	mw.lastActivity["recent"] = time.Now()

	mw.activityMu.Lock()
	mw.sweepActivityLocked()
	mw.activityMu.Unlock()

	assert.NotContains(t, mw.lastActivity, "stale")
	assert.Contains(t, mw.lastActivity, "recent")

	// A second sweep inside the window is a no-op
	mw.lastActivity["stale-again"] = time.Now().Add(-time.Hour)
	mw.activityMu.Lock()
	mw.sweepActivityLocked()
	mw.activityMu.Unlock()
	assert.Contains(t, mw.lastActivity, "stale-again")
}
