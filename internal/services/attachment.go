package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
)

const (
	MaxAttachmentBytes = 20 << 20
	sniffBytes         = 3072
	maxOriginalName    = 255
)

var allowedMimePrefixes = []string{"image/", "video/", "audio/", "text/"}

var allowedMimeTypes = map[string]bool{
	"application/pdf":               true,
	"application/zip":               true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/rtf":               true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,
}

// MimeAllowed reports whether an upload of the given content type is accepted.
func MimeAllowed(mimeType string) bool {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if allowedMimeTypes[base] {
		return true
	}
	for _, p := range allowedMimePrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

type UploadInput struct {
	UploaderID uuid.UUID
	FileName   string
	// Size is the declared size; zero means unknown. The body is still
	// counted against the limit.
	Size int64
	Body io.Reader
}

// AttachmentService stores uploads as orphaned attachments. A later
// SendMessage from the same user claims them.
type AttachmentService interface {
	Upload(ctx context.Context, in UploadInput) (*types.Attachment, error)
}

type attachmentService struct {
	log   *logger.Logger
	repo  repos.AttachmentRepo
	files storage.Store
}

func NewAttachmentService(baseLog *logger.Logger, repo repos.AttachmentRepo, files storage.Store) AttachmentService {
	return &attachmentService{
		log:   baseLog.With("service", "AttachmentService"),
		repo:  repo,
		files: files,
	}
}

type limitedReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.limit {
		return n, errAttachmentTooLarge
	}
	return n, err
}

var errAttachmentTooLarge = apierr.Validation(fmt.Sprintf("attachment must be at most %d MB", MaxAttachmentBytes>>20))

func (s *attachmentService) Upload(ctx context.Context, in UploadInput) (*types.Attachment, error) {
	if in.UploaderID == uuid.Nil {
		return nil, apierr.Validation("uploader is required")
	}
	if in.Body == nil {
		return nil, apierr.Validation("file is required")
	}
	if in.Size > MaxAttachmentBytes {
		return nil, errAttachmentTooLarge
	}
	name := strings.TrimSpace(filepath.Base(in.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "file"
	}
	if r := []rune(name); len(r) > maxOriginalName {
		name = string(r[:maxOriginalName])
	}

	body := &limitedReader{r: in.Body, limit: MaxAttachmentBytes}
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]
	if n == 0 {
		return nil, apierr.Validation("file is empty")
	}
	mt := mimetype.Detect(head)
	mimeType := strings.SplitN(mt.String(), ";", 2)[0]
	if !MimeAllowed(mimeType) {
		return nil, apierr.Validation(fmt.Sprintf("file type %s is not allowed", mimeType))
	}

	id := uuid.New()
	key := fmt.Sprintf("attachments/%s/%s%s", in.UploaderID, id, mt.Extension())
	if err := s.files.Put(ctx, key, io.MultiReader(bytes.NewReader(head), body), mimeType); err != nil {
		if apierr.KindOf(err) == apierr.KindValidationFailure {
			_ = s.files.Delete(context.WithoutCancel(ctx), key)
			return nil, err
		}
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if body.n > MaxAttachmentBytes {
		_ = s.files.Delete(context.WithoutCancel(ctx), key)
		return nil, errAttachmentTooLarge
	}

	now := time.Now().UTC()
	att := &types.Attachment{
		ID:           id,
		UploaderID:   in.UploaderID,
		OriginalName: name,
		MimeType:     mimeType,
		StoragePath:  key,
		SizeBytes:    body.n,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: ctx}, att); err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Warn("Failed to remove orphaned upload", "key", key, "error", derr)
		}
		return nil, err
	}
	decorateAttachments(s.files, []*types.Attachment{att})
	s.log.Debug("Attachment uploaded", "attachment_id", att.ID, "mime_type", mimeType, "size", att.SizeBytes)
	return att, nil
}
