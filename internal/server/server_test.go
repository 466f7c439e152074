package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidtube/internal/api"
	"vidtube/internal/auth"
	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/storage"
)

func newTestHandler(t *testing.T) (*api.Handler, storage.Repository) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	tokens, err := auth.NewManager(auth.Config{
		AccessSecret:  []byte("server-test-access"),
		RefreshSecret: []byte("server-test-refresh"),
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	uploads, err := media.NewLocalUploader(t.TempDir(), "http://media.test")
	if err != nil {
		t.Fatalf("NewLocalUploader error: %v", err)
	}
	return api.NewHandler(store, tokens, uploads), store
}

func newTestServer(t *testing.T, handler *api.Handler, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv, err := New(handler, cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func createServerTestUser(t *testing.T, handler *api.Handler, username string) models.User {
	t.Helper()
	user, err := handler.Store.CreateUser(context.Background(), storage.CreateUserParams{
		Username:  username,
		Email:     username + "@example.com",
		FullName:  "Server Tester",
		Password:  "correct horse",
		AvatarURL: "http://media.test/avatar.png",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	return user
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}

	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope["success"] != false {
		t.Fatalf("success = %v, want false", envelope["success"])
	}
}

func TestPublicAuthRoutesBypassAuthMiddleware(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})

	// An empty body fails validation inside the handler, which proves the
	// request got past the auth middleware.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})
	user := createServerTestUser(t, handler, "bearer")

	token, err := handler.Tokens.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"username":"bearer"`) {
		t.Fatalf("body missing user payload: %s", rec.Body.String())
	}
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})
	user := createServerTestUser(t, handler, "cookie")

	token, err := handler.Tokens.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestChannelProfileAllowsAnonymousReads(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})
	createServerTestUser(t, handler, "channel")

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels/channel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidTokenRejectedOnOptionalAuthRoute(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})
	createServerTestUser(t, handler, "channel")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels/channel", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestSubscribeRouteDispatch(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})
	channel := createServerTestUser(t, handler, "channel")
	fan := createServerTestUser(t, handler, "fan")

	token, err := handler.Tokens.IssueAccessToken(fan)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/channels/channel/subscribe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe status = %d: %s", rec.Code, rec.Body.String())
	}

	subscribed, err := handler.Store.IsSubscribed(context.Background(), fan.ID, channel.ID)
	if err != nil {
		t.Fatalf("IsSubscribed: %v", err)
	}
	if !subscribed {
		t.Fatal("subscription not recorded")
	}
}

func TestLoginRateLimitEnforced(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{
		RateLimit: RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute},
	})
	createServerTestUser(t, handler, "throttled")

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"throttled","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:4321"
		srv.httpServer.Handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("first attempt status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt status = %d, want 429: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}

func TestGlobalRateLimit(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	first := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}

func TestRequestIDEchoedOnResponses(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv := newTestServer(t, handler, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "incoming-id")
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "incoming-id" {
		t.Fatalf("X-Request-Id = %q, want incoming-id", got)
	}

	generated := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(generated, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if generated.Header().Get("X-Request-Id") == "" {
		t.Fatal("generated X-Request-Id missing")
	}
}
