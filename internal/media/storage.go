// Package media stores image attachments in S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxImageBytes caps a single attachment.
const MaxImageBytes = 5 << 20

const presignTTL = 15 * time.Minute

var ErrDisabled = errors.New("attachment storage is not configured")

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AllowedType reports whether contentType is an accepted image type.
func AllowedType(contentType string) bool {
	_, ok := extensions[contentType]
	return ok
}

// Storage uploads attachments and hands out short-lived read URLs.
type Storage interface {
	Put(ctx context.Context, chatID int, contentType string, data []byte) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStorage is the minio-go implementation of Storage.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// New returns a disabled storage when no endpoint is configured.
func New(cfg Config) (Storage, error) {
	if cfg.Endpoint == "" {
		return Disabled{}, nil
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (s *MinioStorage) Put(ctx context.Context, chatID int, contentType string, data []byte) (string, error) {
	key := ObjectKey(chatID, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *MinioStorage) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ObjectKey names a new attachment object.
func ObjectKey(chatID int, contentType string) string {
	ext, ok := extensions[contentType]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("chats/%d/%s.%s", chatID, uuid.NewString(), ext)
}

// Disabled rejects uploads and never resolves URLs.
type Disabled struct{}

func (Disabled) Put(context.Context, int, string, []byte) (string, error) {
	return "", ErrDisabled
}

func (Disabled) PresignGet(context.Context, string) (string, error) {
	return "", ErrDisabled
}
