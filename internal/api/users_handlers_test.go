package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCurrentUserRequiresAuth(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.CurrentUser(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUpdateAccountPatchesOnlyProvidedFields(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "ann", "ann@example.com")

	rec := httptest.NewRecorder()
	req := authedRequest(t, h, http.MethodPatch, "/api/users/account",
		strings.NewReader(`{"fullName":"Ann Updated"}`), user)
	h.UpdateAccount(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	if data["fullName"] != "Ann Updated" {
		t.Fatalf("fullName = %v, want Ann Updated", data["fullName"])
	}
	if data["email"] != "ann@example.com" {
		t.Fatalf("email = %v, want unchanged", data["email"])
	}
	if data["username"] != "ann" {
		t.Fatalf("username = %v, want unchanged", data["username"])
	}
}

func TestUpdateAccountRequiresAField(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "ann", "ann@example.com")

	rec := httptest.NewRecorder()
	req := authedRequest(t, h, http.MethodPatch, "/api/users/account", strings.NewReader(`{}`), user)
	h.UpdateAccount(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateAccountRejectsTakenUsername(t *testing.T) {
	h := newTestHandler(t)
	registerTestUser(t, h, "taken", "taken@example.com")
	user := registerTestUser(t, h, "ann", "ann@example.com")

	rec := httptest.NewRecorder()
	req := authedRequest(t, h, http.MethodPatch, "/api/users/account",
		strings.NewReader(`{"username":"taken"}`), user)
	h.UpdateAccount(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateAvatarStoresNewURL(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "ann", "ann@example.com")

	body, contentType := multipartBody(t, nil, map[string]string{"avatar": "new-avatar"})
	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))

	rec := httptest.NewRecorder()
	h.UpdateAvatar(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	url, _ := data["avatarUrl"].(string)
	if url == "" || url == user.AvatarURL {
		t.Fatalf("avatarUrl = %q, want a new URL", url)
	}
}

func TestUpdateCoverImageRequiresFile(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "ann", "ann@example.com")

	body, contentType := multipartBody(t, map[string]string{"note": "no file"}, nil)
	req := httptest.NewRequest(http.MethodPatch, "/api/users/cover-image", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))

	rec := httptest.NewRecorder()
	h.UpdateCoverImage(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}
