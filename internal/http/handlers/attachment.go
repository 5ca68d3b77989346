package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/services"
)

type AttachmentHandler struct {
	attachments services.AttachmentService
}

func NewAttachmentHandler(attachments services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// POST /api/attachments (multipart field "file")
func (h *AttachmentHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	// Multipart framing overhead on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxAttachmentBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "validation_failure", errors.New("attachment must be at most 20 MB"))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()

	att, err := h.attachments.Upload(c.Request.Context(), services.UploadInput{
		UploaderID: userID,
		FileName:   fh.Filename,
		Size:       fh.Size,
		Body:       f,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"attachment": att})
}
