package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultUploadTimeout = 30 * time.Second

// MinIOConfig describes the object storage bucket that receives uploads.
// PublicBaseURL overrides the URL prefix handed back to clients when the
// bucket sits behind a CDN.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	UploadTimeout time.Duration
}

// MinIOUploader stores staged files in a MinIO or S3-compatible bucket.
type MinIOUploader struct {
	client  *minio.Client
	cfg     MinIOConfig
	baseURL string
}

// NewMinIOUploader connects to the bucket, creating it when absent.
func NewMinIOUploader(ctx context.Context, cfg MinIOConfig) (*MinIOUploader, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket required")
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.UploadTimeout)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinIOUploader{client: client, cfg: cfg, baseURL: baseURL}, nil
}

func (u *MinIOUploader) Upload(ctx context.Context, localPath, originalName, contentType string) (string, error) {
	defer os.Remove(localPath)

	uploadCtx, cancel := context.WithTimeout(ctx, u.cfg.UploadTimeout)
	defer cancel()

	name := objectName(originalName)
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := u.client.FPutObject(uploadCtx, u.cfg.Bucket, name, localPath, opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	return u.baseURL + "/" + name, nil
}
