package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"vidtube/internal/auth"
	"vidtube/internal/storage"
)

// Register creates an account from a multipart form carrying the profile
// fields plus a required avatar file and an optional cover image.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}

	form, err := parseMultipartForm(r, "avatar", "coverImage")
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.release()

	fullName := form.value("fullName")
	email := form.value("email")
	username := form.value("username")
	password := form.value("password")
	if fullName == "" || email == "" || username == "" || password == "" {
		writeError(w, BadRequest("all fields are required"))
		return
	}

	ctx := r.Context()
	if _, err := h.Store.FindUserByUsernameOrEmail(ctx, username, email); err == nil {
		writeError(w, Conflict("user with email or username already exists"))
		return
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		writeError(w, err)
		return
	}

	avatar := form.file("avatar")
	if avatar == nil {
		writeError(w, BadRequest("avatar file is required"))
		return
	}
	avatarURL, err := h.uploadMedia(ctx, avatar)
	if err != nil || avatarURL == "" {
		writeError(w, BadRequest("avatar file is required"))
		return
	}

	// A failed cover upload degrades to no cover image rather than failing
	// the registration.
	coverImageURL := ""
	if cover := form.file("coverImage"); cover != nil {
		if url, coverErr := h.uploadMedia(ctx, cover); coverErr == nil {
			coverImageURL = url
		}
	}

	created, err := h.Store.CreateUser(ctx, storage.CreateUserParams{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		Password:      password,
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	stored, err := h.Store.GetUser(ctx, created.ID)
	if err != nil {
		writeError(w, InternalError("something went wrong while registering the user"))
		return
	}

	writeSuccess(w, http.StatusCreated, newUserResponse(stored), "user registered successfully")
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates by username or email and hands out a fresh token pair
// both as cookies and in the response body.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequest("invalid request body"))
		return
	}
	if req.Username == "" && req.Email == "" {
		writeError(w, BadRequest("username or email is required"))
		return
	}

	ctx := r.Context()
	user, err := h.Store.FindUserByUsernameOrEmail(ctx, req.Username, req.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		writeError(w, NotFound("user does not exist"))
		return
	} else if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Store.VerifyUserPassword(ctx, user.ID, req.Password); err != nil {
		writeError(w, Unauthorized("invalid user credentials"))
		return
	}

	accessToken, refreshToken, err := h.issueTokenPair(ctx, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setAuthCookies(w, r, accessToken, refreshToken)
	writeSuccess(w, http.StatusOK, authResponse{
		User:         newUserResponse(user),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, "user logged in successfully")
}

// Logout invalidates the stored refresh token and expires both cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Store.ClearRefreshToken(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	h.clearAuthCookies(w, r)
	writeSuccess(w, http.StatusOK, nil, "user logged out")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the token pair. The incoming token must verify and
// match the copy stored on the user record; a rotated-out token is rejected.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}

	incoming := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		incoming = cookie.Value
	}
	if incoming == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			incoming = req.RefreshToken
		}
	}
	if incoming == "" {
		writeError(w, Unauthorized("unauthorized request"))
		return
	}

	claims, err := h.Tokens.VerifyRefreshToken(incoming)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(w, Unauthorized("refresh token expired"))
			return
		}
		writeError(w, Unauthorized("invalid refresh token"))
		return
	}

	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, claims.Subject)
	if err != nil {
		writeError(w, Unauthorized("invalid refresh token"))
		return
	}
	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(incoming), []byte(user.RefreshToken)) != 1 {
		writeError(w, Unauthorized("refresh token is expired or used"))
		return
	}

	accessToken, refreshToken, err := h.issueTokenPair(ctx, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setAuthCookies(w, r, accessToken, refreshToken)
	writeSuccess(w, http.StatusOK, map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}, "access token refreshed")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword verifies the current password before storing the new one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequest("invalid request body"))
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, BadRequest("old and new password are required"))
		return
	}

	ctx := r.Context()
	if err := h.Store.VerifyUserPassword(ctx, user.ID, req.OldPassword); err != nil {
		writeError(w, Unauthorized("invalid old password"))
		return
	}
	if err := h.Store.SetUserPassword(ctx, user.ID, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, struct{}{}, "password changed successfully")
}
