package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/huddle-backend/internal/platform/gcp"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type gcsStore struct {
	log     *logger.Logger
	client  *gcs.Client
	bucket  string
	baseURL string
}

func NewGCSStore(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	var opts []option.ClientOption
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	switch cfg.Mode {
	case ModeGCSEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		opts = []option.ClientOption{option.WithoutAuthentication(), option.WithEndpoint(endpoint + "/storage/v1/")}
		if baseURL == "" {
			baseURL = endpoint
		}
	default:
		opts = append(gcp.ClientOptionsFromEnv(), option.WithScopes(gcs.ScopeReadWrite))
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &gcsStore{
		log:     log.With("service", "GCSStore"),
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL + "/" + cfg.Bucket,
	}, nil
}

func (s *gcsStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *gcsStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object %q: %w", key, err)
	}
	return rc, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *gcsStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}
