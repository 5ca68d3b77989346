package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/huddle-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError renders typed domain errors with their own status and code.
// Anything else is an internal error and its text is not exposed.
func RespondAPIError(c *gin.Context, err error) {
	var e *apierr.Error
	if errors.As(err, &e) && e.Status != 0 {
		RespondError(c, e.Status, e.Code, e)
		return
	}
	_ = c.Error(err)
	RespondError(c, http.StatusInternalServerError, string(apierr.KindInternal), errors.New("internal server error"))
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
