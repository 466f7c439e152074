package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func publishTestVideo(t *testing.T, h *Handler, title string) *httptest.ResponseRecorder {
	t.Helper()
	user := registerTestUser(t, h, "owner-"+title, "owner-"+title+"@example.com")
	body, contentType := multipartBody(t, map[string]string{
		"title":       title,
		"description": "a description",
		"duration":    "12.5",
	}, map[string]string{
		"videoFile": "video-bytes",
		"thumbnail": "thumb-bytes",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	return rec
}

func TestPublishVideo(t *testing.T) {
	h := newTestHandler(t)

	rec := publishTestVideo(t, h, "firstvideo")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]any)
	if data["title"] != "firstvideo" {
		t.Fatalf("title = %v, want firstvideo", data["title"])
	}
	if data["duration"] != float64(12.5) {
		t.Fatalf("duration = %v, want 12.5", data["duration"])
	}
	if data["videoFile"] == "" || data["thumbnail"] == "" {
		t.Fatal("media URLs missing from response")
	}
}

func TestPublishVideoValidation(t *testing.T) {
	h := newTestHandler(t)
	user := registerTestUser(t, h, "owner", "owner@example.com")

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string]string
	}{
		{
			name:   "missing title",
			fields: map[string]string{"description": "d"},
			files:  map[string]string{"videoFile": "v", "thumbnail": "t"},
		},
		{
			name:   "missing thumbnail",
			fields: map[string]string{"title": "t", "description": "d"},
			files:  map[string]string{"videoFile": "v"},
		},
		{
			name:   "bad duration",
			fields: map[string]string{"title": "t", "description": "d", "duration": "-3"},
			files:  map[string]string{"videoFile": "v", "thumbnail": "t"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tc.fields, tc.files)
			req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
			req.Header.Set("Content-Type", contentType)
			req = req.WithContext(ContextWithUser(req.Context(), user))
			rec := httptest.NewRecorder()
			h.Videos(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPublishVideoRequiresAuth(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartBody(t, map[string]string{"title": "t", "description": "d"},
		map[string]string{"videoFile": "v", "thumbnail": "t"})
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestListAndFetchVideos(t *testing.T) {
	h := newTestHandler(t)

	published := publishTestVideo(t, h, "listed")
	if published.Code != http.StatusCreated {
		t.Fatalf("publish status = %d: %s", published.Code, published.Body.String())
	}
	id := decodeEnvelope(t, published)["data"].(map[string]any)["id"].(string)

	list := httptest.NewRecorder()
	h.Videos(list, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", list.Code, list.Body.String())
	}
	videos, ok := decodeEnvelope(t, list)["data"].([]any)
	if !ok || len(videos) != 1 {
		t.Fatalf("data = %v, want one video", decodeEnvelope(t, list)["data"])
	}

	fetch := httptest.NewRecorder()
	h.VideoByID(fetch, httptest.NewRequest(http.MethodGet, "/api/videos/"+id, nil))
	if fetch.Code != http.StatusOK {
		t.Fatalf("fetch status = %d: %s", fetch.Code, fetch.Body.String())
	}

	missing := httptest.NewRecorder()
	h.VideoByID(missing, httptest.NewRequest(http.MethodGet, "/api/videos/does-not-exist", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing video status = %d, want 404: %s", missing.Code, missing.Body.String())
	}
}
