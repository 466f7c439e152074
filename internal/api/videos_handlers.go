package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"vidtube/internal/models"
	"vidtube/internal/storage"
)

type videoResponse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	VideoFileURL    string    `json:"videoFile"`
	ThumbnailURL    string    `json:"thumbnail"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationSeconds float64   `json:"duration"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newVideoResponse(video models.Video) videoResponse {
	return videoResponse{
		ID:              video.ID,
		OwnerID:         video.OwnerID,
		VideoFileURL:    video.VideoFileURL,
		ThumbnailURL:    video.ThumbnailURL,
		Title:           video.Title,
		Description:     video.Description,
		DurationSeconds: video.DurationSeconds,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
	}
}

// Videos serves POST /api/videos (publish, authenticated) and
// GET /api/videos (public listing, newest first).
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.publishVideo(w, r)
	case http.MethodGet:
		h.listVideos(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
	}
}

func (h *Handler) publishVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	form, err := parseMultipartForm(r, "videoFile", "thumbnail")
	if err != nil {
		writeError(w, err)
		return
	}
	defer form.release()

	title := form.value("title")
	description := form.value("description")
	if title == "" || description == "" {
		writeError(w, BadRequest("title and description are required"))
		return
	}

	duration := 0.0
	if raw := form.value("duration"); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil || duration < 0 {
			writeError(w, BadRequest("duration must be a non-negative number"))
			return
		}
	}

	videoFile := form.file("videoFile")
	if videoFile == nil {
		writeError(w, BadRequest("video file is required"))
		return
	}
	thumbnail := form.file("thumbnail")
	if thumbnail == nil {
		writeError(w, BadRequest("thumbnail file is required"))
		return
	}

	ctx := r.Context()
	videoURL, err := h.uploadMedia(ctx, videoFile)
	if err != nil || videoURL == "" {
		writeError(w, BadRequest("error while uploading video file"))
		return
	}
	thumbnailURL, err := h.uploadMedia(ctx, thumbnail)
	if err != nil || thumbnailURL == "" {
		writeError(w, BadRequest("error while uploading thumbnail"))
		return
	}

	video, err := h.Store.CreateVideo(ctx, storage.CreateVideoParams{
		OwnerID:         user.ID,
		VideoFileURL:    videoURL,
		ThumbnailURL:    thumbnailURL,
		Title:           title,
		Description:     description,
		DurationSeconds: duration,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, newVideoResponse(video), "video published successfully")
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Store.ListVideos(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		out = append(out, newVideoResponse(video))
	}
	writeSuccess(w, http.StatusOK, out, "videos fetched successfully")
}

// VideoByID serves GET /api/videos/{id}.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, BadRequest("video id is missing"))
		return
	}

	video, err := h.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, newVideoResponse(video), "video fetched successfully")
}
