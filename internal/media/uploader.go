// Package media moves locally staged upload files into durable storage and
// hands back the public URL recorded on user and video records.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploader stores a locally staged file and returns its public URL. The local
// file is removed after the attempt, whether or not it succeeded.
type Uploader interface {
	Upload(ctx context.Context, localPath, originalName, contentType string) (string, error)
}

func objectName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return uuid.NewString() + ext
}

// LocalUploader copies staged files into a directory served as static
// content. It backs development setups that run without object storage.
type LocalUploader struct {
	Dir     string
	BaseURL string
}

func NewLocalUploader(dir, baseURL string) (*LocalUploader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("media dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalUploader{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, localPath, originalName, contentType string) (string, error) {
	defer os.Remove(localPath)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := objectName(originalName)
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close()

	destPath := filepath.Join(u.Dir, name)
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return "", fmt.Errorf("copy media file: %w", err)
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(destPath)
		return "", fmt.Errorf("close media file: %w", err)
	}

	return u.BaseURL + "/" + name, nil
}
