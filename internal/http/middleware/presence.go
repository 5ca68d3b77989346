package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/services"
)

// TrackPresence refreshes the caller's online marker on every authenticated
// request. It must run after RequireAuth.
func TrackPresence(presence services.PresenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if presence != nil {
			if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
				presence.Touch(c.Request.Context(), rd.UserID)
			}
		}
		c.Next()
	}
}
