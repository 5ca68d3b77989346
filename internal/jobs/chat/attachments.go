package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gorm.io/datatypes"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	jobrt "github.com/yungbote/huddle-backend/internal/jobs/runtime"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
)

const (
	ThumbnailMaxSide = 320
	// Larger images are measured but not decoded.
	maxDecodePixels = 40_000_000
	sniffBytes      = 3072
)

// AttachmentsProcessor fills in content-derived attachment fields after a
// message is committed: sniffed mime type, image size and a thumbnail.
type AttachmentsProcessor struct {
	log      *logger.Logger
	messages repos.MessageRepo
	atts     repos.AttachmentRepo
	files    storage.Store
}

func NewAttachmentsProcessor(baseLog *logger.Logger, messages repos.MessageRepo, atts repos.AttachmentRepo, files storage.Store) *AttachmentsProcessor {
	return &AttachmentsProcessor{
		log:      baseLog.With("job", types.JobTypeMessageAttachmentsProcess),
		messages: messages,
		atts:     atts,
		files:    files,
	}
}

func (p *AttachmentsProcessor) Type() string { return types.JobTypeMessageAttachmentsProcess }

type attachmentSummary struct {
	Count      int   `json:"count"`
	Images     int   `json:"images"`
	TotalBytes int64 `json:"total_bytes"`
	Processed  int   `json:"processed"`
}

func (p *AttachmentsProcessor) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	messageID, ok := jc.PayloadUUID("message_id")
	if !ok && jc.Job.EntityID != nil {
		messageID, ok = *jc.Job.EntityID, true
	}
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing message_id"))
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	msg, err := p.messages.GetByID(dbc, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		// Deleted or cleared before the job ran.
		jc.Succeed("skipped", map[string]any{"message_id": messageID, "reason": "message not found"})
		return nil
	}

	jc.Stage("process")
	atts, err := p.atts.ListByMessage(dbc, messageID)
	if err != nil {
		return err
	}
	summary := attachmentSummary{Count: len(atts)}
	for _, a := range atts {
		summary.TotalBytes += a.SizeBytes
		if a.ProcessedAt == nil {
			if err := p.processOne(jc, a); err != nil {
				return fmt.Errorf("attachment %s: %w", a.ID, err)
			}
		}
		if a.ProcessedAt != nil {
			summary.Processed++
		}
		if strings.HasPrefix(a.MimeType, "image/") {
			summary.Images++
		}
	}

	jc.Stage("summarize")
	meta, err := mergeMetadata(msg.Metadata, "attachments", summary)
	if err != nil {
		return err
	}
	if err := p.messages.UpdateFields(dbc, messageID, map[string]interface{}{"metadata": meta}); err != nil {
		return err
	}
	jc.Succeed("done", map[string]any{"message_id": messageID, "attachments": summary})
	return nil
}

func (p *AttachmentsProcessor) processOne(jc *jobrt.Context, a *types.Attachment) error {
	rc, err := p.files.Open(jc.Ctx, a.StoragePath)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"processed_at": now}
	head := raw
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	mimeType := strings.SplitN(mimetype.Detect(head).String(), ";", 2)[0]
	if mimeType != a.MimeType {
		updates["mime_type"] = mimeType
		a.MimeType = mimeType
	}

	if strings.HasPrefix(mimeType, "image/") {
		thumbKey, w, h, err := p.thumbnail(jc, a, raw)
		if err != nil {
			// Undecodable images are still marked processed; the original stays downloadable.
			p.log.Warn("Image decode failed", "attachment_id", a.ID, "mime_type", mimeType, "error", err)
		} else {
			updates["width"] = w
			updates["height"] = h
			a.Width, a.Height = &w, &h
			if thumbKey != "" {
				updates["thumbnail_path"] = thumbKey
				a.ThumbnailPath = &thumbKey
			}
		}
	}
	if err := p.atts.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, a.ID, updates); err != nil {
		return err
	}
	a.ProcessedAt = &now
	return nil
}

// thumbnail measures the image and, when it fits the decode budget, stores a
// JPEG scaled so its longest side is at most ThumbnailMaxSide.
func (p *AttachmentsProcessor) thumbnail(jc *jobrt.Context, a *types.Attachment, raw []byte) (string, int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", 0, 0, err
	}
	if cfg.Width*cfg.Height > maxDecodePixels {
		return "", cfg.Width, cfg.Height, nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", 0, 0, err
	}
	tw, th := ScaledSize(cfg.Width, cfg.Height, ThumbnailMaxSide)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", 0, 0, err
	}
	key := thumbnailKey(a)
	if err := p.files.Put(jc.Ctx, key, &buf, "image/jpeg"); err != nil {
		return "", 0, 0, err
	}
	return key, cfg.Width, cfg.Height, nil
}

func thumbnailKey(a *types.Attachment) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", a.UploaderID, a.ID)
}

// ScaledSize fits w x h inside a max x max box, keeping the aspect ratio.
// Images already inside the box keep their size.
func ScaledSize(w, h, max int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

func mergeMetadata(existing datatypes.JSON, key string, value any) (datatypes.JSON, error) {
	m := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &m); err != nil || m == nil {
			m = map[string]any{}
		}
	}
	m[key] = value
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

var _ jobrt.Handler = (*AttachmentsProcessor)(nil)
