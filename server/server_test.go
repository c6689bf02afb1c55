package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/config"
	qt "github.com/sixfold/sixfold/internal/testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db := qt.CreateMigratedTestDB(t)
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:        "test-secret-key-for-server-tests",
			TokenExpiry:      "15m",
			RefreshExpiry:    "720h",
			MagicLinkExpiry:  "15m",
			MagicLinkBaseURL: "http://localhost:3000/magic",
			MinPasswordLen:   10,
		},
		Shopify: config.ShopifyConfig{
			ShopDomain:    "acme.myshopify.com",
			WebhookSecret: "whsec_shopify",
			APIVersion:    "2024-10",
			PageSize:      50,
		},
		Stripe: config.StripeConfig{
			APIKey:        "sk_test_dummy",
			WebhookSecret: "whsec_stripe",
		},
	}

	srv, err := New(cfg, db, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// signupUser registers a user and returns their access token
func signupUser(t *testing.T, srv *Server, email string) string {
	t.Helper()

	rec, env := do(t, srv, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":        email,
		"password":     "a-long-enough-password",
		"display_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var resp struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp.Tokens.AccessToken
}

// createGroup creates a group owned by the token's user, returns group ID
func createGroup(t *testing.T, srv *Server, token, slug string) string {
	t.Helper()

	rec, env := do(t, srv, http.MethodPost, "/api/groups", token, map[string]string{
		"slug": slug,
		"name": "Group " + slug,
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var group struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &group))
	return group.ID
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec, env := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	rec, env := do(t, srv, http.MethodGet, "/api/groups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, env.Error)

	rec, env = do(t, srv, http.MethodGet, "/api/jobs", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, env.Error)
}

func TestGroupLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")

	groupID := createGroup(t, srv, token, "acme")

	rec, env := do(t, srv, http.MethodGet, "/api/groups/"+groupID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"slug":"acme"`)

	rec, _ = do(t, srv, http.MethodPatch, "/api/groups/"+groupID, token, map[string]string{"name": "Acme Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Duplicate slug conflicts
	rec, _ = do(t, srv, http.MethodPost, "/api/groups", token, map[string]string{"slug": "acme", "name": "Other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, srv, http.MethodDelete, "/api/groups/"+groupID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/groups/"+groupID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupMembershipEnforced(t *testing.T) {
	srv := newTestServer(t)
	owner := signupUser(t, srv, "owner@example.com")
	outsider := signupUser(t, srv, "outsider@example.com")

	groupID := createGroup(t, srv, owner, "acme")

	rec, env := do(t, srv, http.MethodGet, "/api/groups/"+groupID+"/things", outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEmpty(t, env.Error)

	rec, _ = do(t, srv, http.MethodGet, "/api/groups/"+groupID+"/things", owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestThingLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")
	groupID := createGroup(t, srv, token, "acme")
	base := "/api/groups/" + groupID + "/things"

	rec, env := do(t, srv, http.MethodPost, base, token, map[string]any{
		"type": "product",
		"name": "Widget",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var thing struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &thing))
	assert.Equal(t, "draft", thing.Status)

	// Forward transition is allowed
	rec, env = do(t, srv, http.MethodPost, base+"/"+thing.ID+"/status", token, map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	// Backward transition is rejected
	rec, _ = do(t, srv, http.MethodPost, base+"/"+thing.ID+"/status", token, map[string]string{"status": "draft"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Mutations show up in the audit trail
	rec, env = do(t, srv, http.MethodGet, "/api/groups/"+groupID+"/events?verb=thing.status_changed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.Len(t, events, 1)

	rec, _ = do(t, srv, http.MethodDelete, base+"/"+thing.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPeopleFacade(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")
	groupID := createGroup(t, srv, token, "acme")

	rec, env := do(t, srv, http.MethodPost, "/api/groups/"+groupID+"/people", token, map[string]string{
		"name": "Ada Lovelace",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var person struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &person))
	assert.Equal(t, "person", person.Type)

	rec, _ = do(t, srv, http.MethodGet, "/api/groups/"+groupID+"/people/"+person.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectionsAndNeighbors(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")
	groupID := createGroup(t, srv, token, "acme")
	base := "/api/groups/" + groupID

	makeThing := func(name string) string {
		rec, env := do(t, srv, http.MethodPost, base+"/things", token, map[string]string{"type": "node", "name": name})
		require.Equal(t, http.StatusCreated, rec.Code, env.Error)
		var thing struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &thing))
		return thing.ID
	}

	from := makeThing("a")
	to := makeThing("b")

	rec, env := do(t, srv, http.MethodPost, base+"/connections", token, map[string]string{
		"from_thing": from,
		"to_thing":   to,
		"type":       "links_to",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	rec, env = do(t, srv, http.MethodGet, base+"/things/"+from+"/neighbors?direction=out", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var conns []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &conns))
	assert.Len(t, conns, 1)

	// Self-loops are invalid
	rec, _ = do(t, srv, http.MethodPost, base+"/connections", token, map[string]string{
		"from_thing": from,
		"to_thing":   from,
		"type":       "links_to",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeSearchWithoutEmbedder(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")
	groupID := createGroup(t, srv, token, "acme")

	// Chunks can be stored without an embedding provider
	rec, env := do(t, srv, http.MethodPost, "/api/groups/"+groupID+"/knowledge", token, map[string]string{
		"label":   "note",
		"content": "the warehouse closes at six",
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	// Search requires one
	rec, _ = do(t, srv, http.MethodGet, "/api/groups/"+groupID+"/knowledge/search?q=warehouse", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestShopifyWebhookEndpoint(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{"id":"gid://shopify/Product/1","title":"Widget"}`)

	mac := hmac.New(sha256.New, []byte("whsec_shopify"))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify?group_id=g1", bytes.NewReader(body))
		req.Header.Set("X-Shopify-Webhook-Id", "wh-1")
		req.Header.Set("X-Shopify-Topic", "products/update")
		req.Header.Set("X-Shopify-Hmac-Sha256", sig)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")

	// Redelivery acknowledged as duplicate
	rec = send()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")

	// Forged signature rejected
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", "forged")
	bad := httptest.NewRecorder()
	srv.Handler().ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestJobsIntrospection(t *testing.T) {
	srv := newTestServer(t)
	token := signupUser(t, srv, "owner@example.com")
	groupID := createGroup(t, srv, token, "acme")

	rec, env := do(t, srv, http.MethodPost, "/api/groups/"+groupID+"/shopify/sync", token, map[string]string{
		"resource": "products",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, env.Error)

	var job struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &job))

	rec, env = do(t, srv, http.MethodGet, "/api/jobs/"+job.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "shopify.sync")

	// A valid status filter narrows the listing to matching jobs
	rec, env = do(t, srv, http.MethodGet, "/api/jobs?status=queued", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), job.ID)

	rec, env = do(t, srv, http.MethodGet, "/api/jobs?status=completed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), job.ID)

	rec, _ = do(t, srv, http.MethodGet, "/api/jobs?status=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/jobs/does-not-exist", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	signupUser(t, srv, "ada@example.com")

	rec, env := do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "a-long-enough-password",
	})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var resp struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))

	// Wrong password
	rec, _ = do(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password-entirely",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh rotates the token
	rec, env = do(t, srv, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": resp.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	// The old refresh token is dead after rotation
	rec, _ = do(t, srv, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": resp.Tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Sessions are listable with a valid access token
	rec, env = do(t, srv, http.MethodGet, "/api/auth/sessions", resp.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
}
