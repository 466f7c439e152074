package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"vidtube/internal/auth"
	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/storage"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	tokens, err := auth.NewManager(auth.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		Issuer:        "vidtube-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	uploads, err := media.NewLocalUploader(t.TempDir(), "http://media.test")
	if err != nil {
		t.Fatalf("NewLocalUploader: %v", err)
	}
	return NewHandler(store, tokens, uploads)
}

func registerTestUser(t *testing.T, h *Handler, username, email string) models.User {
	t.Helper()
	user, err := h.Store.CreateUser(context.Background(), storage.CreateUserParams{
		Username:  username,
		Email:     email,
		FullName:  "Test User",
		Password:  "correct horse",
		AvatarURL: "http://media.test/avatar.png",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func authedRequest(t *testing.T, h *Handler, method, target string, body io.Reader, user models.User) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(ContextWithUser(req.Context(), user))
}

// multipartBody builds a multipart payload out of text fields and small
// in-memory files.
func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField(%s): %v", name, err)
		}
	}
	for name, content := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("CreateFormFile(%s): %v", name, err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestHealthReportsStoreStatus(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %q, want ok status", rec.Body.String())
	}
}

func TestSuccessEnvelopeShape(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "envelope", "envelope@example.com")

	rec := httptest.NewRecorder()
	h.CurrentUser(rec, authedRequest(t, h, http.MethodGet, "/api/users/me", nil, user))

	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != true {
		t.Fatalf("success = %v, want true", envelope["success"])
	}
	if envelope["statusCode"] != float64(http.StatusOK) {
		t.Fatalf("statusCode = %v, want 200", envelope["statusCode"])
	}
	if envelope["message"] == "" {
		t.Fatal("message is empty")
	}
	if _, ok := envelope["data"]; !ok {
		t.Fatal("data field is missing")
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/channels/ghost", nil)
	h.ChannelProfile(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if envelope["success"] != false {
		t.Fatalf("success = %v, want false", envelope["success"])
	}
	errs, ok := envelope["errors"].([]any)
	if !ok {
		t.Fatalf("errors = %v, want array", envelope["errors"])
	}
	if errs == nil {
		t.Fatal("errors array is nil")
	}
}

func TestSanitizedResponsesOmitSecrets(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "secretive", "secretive@example.com")
	if err := h.Store.SetRefreshToken(context.Background(), user.ID, "stored-refresh"); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}

	rec := httptest.NewRecorder()
	h.CurrentUser(rec, authedRequest(t, h, http.MethodGet, "/api/users/me", nil, user))

	body := rec.Body.String()
	for _, forbidden := range []string{"password", "passwordHash", "refreshToken", "pbkdf2"} {
		if strings.Contains(body, forbidden) {
			t.Fatalf("response leaks %q: %s", forbidden, body)
		}
	}
}
