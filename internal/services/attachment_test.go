package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newAttachmentEnv(t *testing.T) (*testEnv, AttachmentService, storage.Store) {
	t.Helper()
	e := newTestEnv(t)
	files, err := storage.NewLocalStore(t.TempDir(), "http://files.test")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return e, NewAttachmentService(e.log, e.repo.Attachments, files), files
}

func TestUploadImage(t *testing.T) {
	e, svc, files := newAttachmentEnv(t)
	alice := e.user(t, "alice")
	data := pngBytes(t)

	att, err := svc.Upload(e.ctx, UploadInput{UploaderID: alice.ID, FileName: "../../dot.png", Body: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if att.MimeType != "image/png" || att.SizeBytes != int64(len(data)) {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if att.OriginalName != "dot.png" {
		t.Fatalf("path components should be stripped, got %q", att.OriginalName)
	}
	if att.MessageID != nil {
		t.Fatalf("fresh upload must be orphaned")
	}
	if !strings.HasPrefix(att.URL, "http://files.test/") {
		t.Fatalf("missing url: %q", att.URL)
	}

	rc, err := files.Open(e.ctx, att.StoragePath)
	if err != nil {
		t.Fatalf("open stored object: %v", err)
	}
	defer rc.Close()
	stored, _ := io.ReadAll(rc)
	if !bytes.Equal(stored, data) {
		t.Fatalf("stored bytes differ")
	}

	row, err := e.repo.Attachments.GetByID(dbctx.Context{Ctx: e.ctx}, att.ID)
	if err != nil || row == nil {
		t.Fatalf("attachment row missing: %v", err)
	}
}

func TestUploadRejectsExecutables(t *testing.T) {
	e, svc, _ := newAttachmentEnv(t)
	alice := e.user(t, "alice")
	elf := append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, make([]byte, 120)...)

	_, err := svc.Upload(e.ctx, UploadInput{UploaderID: alice.ID, FileName: "tool.png", Body: bytes.NewReader(elf)})
	expectKind(t, err, apierr.KindValidationFailure)
}

func TestUploadRejectsOversize(t *testing.T) {
	e, svc, _ := newAttachmentEnv(t)
	alice := e.user(t, "alice")

	_, err := svc.Upload(e.ctx, UploadInput{UploaderID: alice.ID, FileName: "big.txt", Size: MaxAttachmentBytes + 1, Body: strings.NewReader("hello")})
	expectKind(t, err, apierr.KindValidationFailure)

	_, err = svc.Upload(e.ctx, UploadInput{UploaderID: alice.ID, FileName: "empty.txt", Body: strings.NewReader("")})
	expectKind(t, err, apierr.KindValidationFailure)
}

func TestMimeAllowed(t *testing.T) {
	for mime, want := range map[string]bool{
		"image/png":                     true,
		"text/plain; charset=utf-8":     true,
		"application/pdf":               true,
		"application/x-elf":             false,
		"application/x-msdownload":      false,
		"application/vnd.ms-excel":      true,
		"application/x-shockwave-flash": false,
	} {
		if got := MimeAllowed(mime); got != want {
			t.Fatalf("MimeAllowed(%q) = %v, want %v", mime, got, want)
		}
	}
}
