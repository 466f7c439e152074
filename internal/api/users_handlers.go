package api

import (
	"context"
	"net/http"

	"vidtube/internal/models"
	"vidtube/internal/storage"
)

// CurrentUser returns the sanitized record of the authenticated account.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, newUserResponse(user), "current user fetched successfully")
}

type updateAccountRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
	Username *string `json:"username"`
}

// UpdateAccount patches profile fields. At least one field must be present;
// absent fields are left untouched.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.Header().Set("Allow", "PATCH")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequest("invalid request body"))
		return
	}
	if req.FullName == nil && req.Email == nil && req.Username == nil {
		writeError(w, BadRequest("at least one field is required"))
		return
	}

	updated, err := h.Store.UpdateUser(r.Context(), user.ID, storage.UserUpdate{
		FullName: req.FullName,
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(updated), "account details updated successfully")
}

// UpdateAvatar replaces the avatar with an uploaded image.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.Store.SetAvatarURL, "avatar updated successfully")
}

// UpdateCoverImage replaces the cover image with an uploaded image.
func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.Store.SetCoverImageURL, "cover image updated successfully")
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, apply func(ctx context.Context, id, url string) (models.User, error), message string) {
	if r.Method != http.MethodPatch {
		w.Header().Set("Allow", "PATCH")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	form, err := parseMultipartForm(r, field)
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.release()

	upload := form.file(field)
	if upload == nil {
		writeError(w, BadRequest(field+" file is required"))
		return
	}

	ctx := r.Context()
	url, err := h.uploadMedia(ctx, upload)
	if err != nil || url == "" {
		writeError(w, BadRequest("error while uploading "+field))
		return
	}

	updated, err := apply(ctx, user.ID, url)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, newUserResponse(updated), message)
}
