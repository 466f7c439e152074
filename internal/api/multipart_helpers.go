package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
)

// maxMultipartValueBytes bounds text fields; file parts stream to disk.
const maxMultipartValueBytes = 64 << 10

type uploadedMedia struct {
	tempPath     string
	size         int64
	originalName string
	contentType  string
}

// multipartForm holds the parsed parts of a multipart request. File parts are
// staged to temp files; callers must either hand them to the uploader or
// release the form so the staged files are removed.
type multipartForm struct {
	values map[string]string
	files  map[string]*uploadedMedia
}

func (f *multipartForm) value(name string) string {
	return strings.TrimSpace(f.values[name])
}

func (f *multipartForm) file(name string) *uploadedMedia {
	return f.files[name]
}

// release removes any staged file that has not been consumed by an upload.
func (f *multipartForm) release() {
	for _, media := range f.files {
		if media != nil && media.tempPath != "" {
			_ = os.Remove(media.tempPath)
			media.tempPath = ""
		}
	}
}

// parseMultipartForm streams the request body, staging the named file fields
// to temp files and collecting everything else as text values.
func parseMultipartForm(r *http.Request, fileFields ...string) (*multipartForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, BadRequest("invalid multipart payload")
	}

	isFileField := make(map[string]bool, len(fileFields))
	for _, name := range fileFields {
		isFileField[name] = true
	}

	form := &multipartForm{
		values: make(map[string]string),
		files:  make(map[string]*uploadedMedia),
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			form.release()
			return nil, BadRequest("read multipart data")
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if isFileField[name] {
			if form.files[name] != nil {
				_ = part.Close()
				continue
			}
			media, saveErr := saveMultipartFile(part)
			if saveErr != nil {
				form.release()
				return nil, saveErr
			}
			form.files[name] = media
			continue
		}
		payload, readErr := io.ReadAll(io.LimitReader(part, maxMultipartValueBytes))
		_ = part.Close()
		if readErr != nil {
			form.release()
			return nil, BadRequest("read form field")
		}
		form.values[name] = strings.TrimSpace(string(payload))
	}
	return form, nil
}

func saveMultipartFile(part *multipart.Part) (*uploadedMedia, error) {
	defer part.Close()
	tmp, err := os.CreateTemp("", "staged-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()
	written, err := io.Copy(tmp, part)
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("save upload: %w", err)
	}
	return &uploadedMedia{
		tempPath:     tmp.Name(),
		size:         written,
		originalName: part.FileName(),
		contentType:  part.Header.Get("Content-Type"),
	}, nil
}

// uploadMedia hands a staged file to the uploader, which removes the staged
// copy on success and failure alike.
func (h *Handler) uploadMedia(ctx context.Context, media *uploadedMedia) (string, error) {
	if media == nil || media.tempPath == "" {
		return "", BadRequest("file is required")
	}
	path := media.tempPath
	media.tempPath = ""
	url, err := h.Uploads.Upload(ctx, path, media.originalName, media.contentType)
	if err != nil {
		return "", err
	}
	return url, nil
}
