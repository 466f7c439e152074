package api

import (
	"net/http"
	"strings"

	"vidtube/internal/models"
)

// ChannelProfile serves GET /api/channels/{username}. Subscription counts are
// computed per request; isSubscribed reflects the requester when one is
// authenticated and is false otherwise.
func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}

	username := channelUsernameFromPath(r.URL.Path)
	if username == "" {
		writeError(w, BadRequest("username is missing"))
		return
	}

	ctx := r.Context()
	channel, err := h.Store.FindUserByUsername(ctx, username)
	if err != nil {
		writeError(w, NotFound("channel does not exist"))
		return
	}

	subscribers, err := h.Store.CountSubscribers(ctx, channel.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	subscribedTo, err := h.Store.CountSubscribedTo(ctx, channel.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	isSubscribed := false
	if requester, ok := UserFromContext(ctx); ok {
		isSubscribed, err = h.Store.IsSubscribed(ctx, requester.ID, channel.ID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	profile := models.ChannelProfile{
		ID:                       channel.ID,
		Username:                 channel.Username,
		FullName:                 channel.FullName,
		Email:                    channel.Email,
		AvatarURL:                channel.AvatarURL,
		CoverImageURL:            channel.CoverImageURL,
		TotalSubscribers:         subscribers,
		TotalChannelSubscribedTo: subscribedTo,
		IsSubscribed:             isSubscribed,
		CreatedAt:                channel.CreatedAt,
	}
	writeSuccess(w, http.StatusOK, profile, "channel profile fetched successfully")
}

// Subscription handles POST and DELETE on /api/channels/{username}/subscribe
// for the authenticated requester.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		w.Header().Set("Allow", "POST, DELETE")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	username := channelUsernameFromPath(r.URL.Path)
	if username == "" {
		writeError(w, BadRequest("username is missing"))
		return
	}

	ctx := r.Context()
	channel, err := h.Store.FindUserByUsername(ctx, username)
	if err != nil {
		writeError(w, NotFound("channel does not exist"))
		return
	}

	if r.Method == http.MethodPost {
		if err := h.Store.Subscribe(ctx, user.ID, channel.ID); err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, nil, "subscribed to channel")
		return
	}

	if err := h.Store.Unsubscribe(ctx, user.ID, channel.ID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "unsubscribed from channel")
}

// channelUsernameFromPath extracts the username segment from
// /api/channels/{username} and /api/channels/{username}/subscribe.
func channelUsernameFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/channels/")
	if !ok {
		return ""
	}
	rest = strings.TrimSuffix(rest, "/subscribe")
	rest = strings.Trim(rest, "/")
	if strings.Contains(rest, "/") {
		return ""
	}
	return strings.ToLower(rest)
}
