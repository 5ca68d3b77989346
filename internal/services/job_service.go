package services

import (
	"encoding/json"
	"fmt"
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

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// EnqueueIfNeeded skips the insert when a queued or running job of the
	// same type already targets the entity.
	EnqueueIfNeeded(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, bool, error)
}

type jobService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.JobRunRepo
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo) JobService {
	return &jobService{
		db:   db,
		log:  baseLog.With("service", "JobService"),
		repo: repo,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, err
	}
	s.log.Debug("Job enqueued", "job_id", job.ID, "job_type", jobType, "entity_id", entityID)
	return job, nil
}

func (s *jobService) EnqueueIfNeeded(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID uuid.UUID, payload map[string]any) (*types.JobRun, bool, error) {
	exists, err := s.repo.ExistsRunnable(dbc, jobType, entityType, entityID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}
	id := entityID
	job, err := s.Enqueue(dbc, ownerUserID, jobType, entityType, &id, payload)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}
