package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/services"
)

func authedRouter(t *testing.T) (*gin.Engine, services.AuthService, services.PresenceStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	auth := services.NewAuthService(log, "test-secret")
	presence := services.NewPresenceStore(kvstore.NewMemoryStore(), log)

	r := gin.New()
	r.Use(AttachTraceContext())
	api := r.Group("/api", NewAuthMiddleware(log, auth).RequireAuth(), TrackPresence(presence))
	api.GET("/whoami", func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		td := ctxutil.GetTraceData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": rd.UserID, "request_id": td.RequestID})
	})
	return r, auth, presence
}

func TestRequireAuth(t *testing.T) {
	r, auth, presence := authedRouter(t)
	user := uuid.New()
	token, err := auth.IssueToken(user, "alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"no token", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bad token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"header", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"query", func(req *http.Request) {
			q := req.URL.Query()
			q.Set("token", token)
			req.URL.RawQuery = q.Encode()
		}, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		c.setup(req)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != c.status {
			t.Fatalf("%s: status %d, body %s", c.name, rec.Code, rec.Body.String())
		}
	}
	if !presence.IsOnline(context.Background(), user) {
		t.Fatalf("authenticated request should mark the user online")
	}
}

func TestTraceContextEchoesRequestID(t *testing.T) {
	r, auth, _ := authedRouter(t)
	token, _ := auth.IssueToken(uuid.New(), "", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("request id not echoed: %q", rec.Header().Get("X-Request-Id"))
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace id missing")
	}
}
