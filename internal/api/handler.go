// Package api implements the HTTP handlers for accounts, sessions, channel
// profiles, and video metadata. Handlers raise typed errors which a single
// boundary translator renders into the JSON error envelope.
package api

import (
	"context"
	"net/http"
	"time"

	"vidtube/internal/auth"
	"vidtube/internal/media"
	"vidtube/internal/models"
	"vidtube/internal/storage"
)

type Handler struct {
	Store        storage.Repository
	Tokens       *auth.Manager
	Uploads      media.Uploader
	CookiePolicy TokenCookiePolicy
}

func NewHandler(store storage.Repository, tokens *auth.Manager, uploads media.Uploader) *Handler {
	return &Handler{
		Store:        store,
		Tokens:       tokens,
		Uploads:      uploads,
		CookiePolicy: DefaultTokenCookiePolicy(),
	}
}

// userResponse is the sanitized account view. Password hashes and refresh
// tokens never leave the server.
type userResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// issueTokenPair signs both tokens for the user and persists the refresh
// token before either is returned, so a failed save never leaks a usable
// token.
func (h *Handler) issueTokenPair(ctx context.Context, userID string) (accessToken, refreshToken string, err error) {
	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	accessToken, err = h.Tokens.IssueAccessToken(user)
	if err == nil {
		refreshToken, err = h.Tokens.IssueRefreshToken(user)
	}
	if err == nil {
		err = h.Store.SetRefreshToken(ctx, user.ID, refreshToken)
	}
	if err != nil {
		return "", "", InternalError("something went wrong while generating refresh and access token")
	}
	return accessToken, refreshToken, nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeRaw(w, code, map[string]string{"status": status})
}
