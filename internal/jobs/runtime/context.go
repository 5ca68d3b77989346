package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

/*
Context is the handle a handler gets for one claimed job run.
Handlers never write job_run directly; lifecycle transitions go through
Stage, Fail and Succeed so the worker can rely on the row's final state.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Log     *logger.Logger
	payload map[string]any
	done    bool
}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, log *logger.Logger) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
		Log:  log,
	}
	if err := c.decodePayload(); err != nil && log != nil {
		log.Warn("Job payload is not a JSON object", "job_id", job.ID, "error", err)
	}
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// applyTraceData restores the trace and request ids stamped at enqueue time.
func (c *Context) applyTraceData() {
	if c.Ctx == nil {
		return
	}
	payload := c.Payload()
	traceID := payloadString(payload, "trace_id")
	reqID := payloadString(payload, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

func payloadString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := payloadString(c.Payload(), key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Done reports whether the handler already recorded a terminal state.
func (c *Context) Done() bool { return c.done }

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Stage records a non-terminal step and refreshes the heartbeat.
func (c *Context) Stage(stage string) {
	if c == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now().UTC()
	if c.Repo != nil {
		if err := c.Repo.UpdateFields(dbctx.Context{Ctx: c.ctx()}, c.Job.ID, map[string]interface{}{
			"stage":        stage,
			"heartbeat_at": now,
		}); err != nil && c.Log != nil {
			c.Log.Warn("Job stage update failed", "job_id", c.Job.ID, "stage", stage, "error", err)
		}
	}
	c.Job.Stage = stage
	c.Job.HeartbeatAt = &now
}

// Fail marks the run failed. The worker retries it after the retry delay
// until attempts are exhausted.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Job == nil {
		return
	}
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if c.Repo != nil && c.Job.ID != uuid.Nil {
		if uerr := c.Repo.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(c.ctx())}, c.Job.ID, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
		}); uerr != nil && c.Log != nil {
			c.Log.Error("Job fail update failed", "job_id", c.Job.ID, "error", uerr)
		}
	}
	c.Job.Status = types.JobStatusFailed
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.done = true
}

func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.Job == nil {
		return
	}
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if c.Repo != nil && c.Job.ID != uuid.Nil {
		if err := c.Repo.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(c.ctx())}, c.Job.ID, map[string]interface{}{
			"status":       types.JobStatusSucceeded,
			"stage":        finalStage,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
		}); err != nil && c.Log != nil {
			c.Log.Error("Job succeed update failed", "job_id", c.Job.ID, "error", err)
		}
	}
	c.Job.Status = types.JobStatusSucceeded
	c.Job.Stage = finalStage
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.Job.HeartbeatAt = &now
	c.done = true
}
