package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

var ErrObjectNotFound = errors.New("object not found")

// Store holds attachment bytes. Keys are slash-separated and relative.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type Config struct {
	Mode          Mode
	LocalDir      string
	PublicBaseURL string
	Bucket        string
	EmulatorHost  string
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if strings.TrimSpace(c.LocalDir) == "" {
			return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires LOCAL_STORAGE_DIR", c.Mode)
		}
	case ModeGCS:
		if strings.TrimSpace(c.Bucket) == "" {
			return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires ATTACHMENT_GCS_BUCKET_NAME", c.Mode)
		}
	case ModeGCSEmulator:
		if strings.TrimSpace(c.Bucket) == "" || strings.TrimSpace(c.EmulatorHost) == "" {
			return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires ATTACHMENT_GCS_BUCKET_NAME and STORAGE_EMULATOR_HOST", c.Mode)
		}
	default:
		return fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)", c.Mode, ModeLocal, ModeGCS, ModeGCSEmulator)
	}
	return nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "local_dir", cfg.LocalDir)
	switch cfg.Mode {
	case ModeLocal:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return NewGCSStore(ctx, log, cfg)
	}
}

// CleanKey rejects absolute paths and parent traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "/" + key
	}
	return base + "/" + key
}
