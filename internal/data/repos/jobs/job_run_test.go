package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/huddle-backend/internal/data/repos/testutil"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	ownerUserID := uuid.New()

	queued := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "message_attachments_process",
		EntityType:  "message",
		EntityID:    testutil.PtrUUID(uuid.New()),
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-3 * time.Hour),
		UpdatedAt:   now.Add(-3 * time.Hour),
	}
	failed := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "message_attachments_process",
		EntityType:  "message",
		EntityID:    testutil.PtrUUID(uuid.New()),
		Status:      types.JobStatusFailed,
		Stage:       "failed",
		LastErrorAt: testutil.PtrTime(now.Add(-2 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	staleRunning := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "message_attachments_process",
		EntityType:  "message",
		EntityID:    testutil.PtrUUID(uuid.New()),
		Status:      types.JobStatusRunning,
		Stage:       "running",
		HeartbeatAt: testutil.PtrTime(now.Add(-10 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}
	exhausted := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "message_attachments_process",
		EntityType:  "message",
		EntityID:    testutil.PtrUUID(uuid.New()),
		Status:      types.JobStatusFailed,
		Stage:       "failed",
		Attempts:    3,
		LastErrorAt: testutil.PtrTime(now.Add(-5 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-6 * time.Hour),
		UpdatedAt:   now.Add(-6 * time.Hour),
	}

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning, exhausted})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("Create: expected 4, got %d", len(created))
	}

	if got, err := repo.GetByID(dbc, queued.ID); err != nil || got == nil || got.ID != queued.ID {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}

	exists, err := repo.ExistsRunnable(dbc, "message_attachments_process", "message", *queued.EntityID)
	if err != nil {
		t.Fatalf("ExistsRunnable: %v", err)
	}
	if !exists {
		t.Fatalf("ExistsRunnable: expected true for queued job")
	}
	exists, err = repo.ExistsRunnable(dbc, "message_attachments_process", "message", *failed.EntityID)
	if err != nil {
		t.Fatalf("ExistsRunnable(failed): %v", err)
	}
	if exists {
		t.Fatalf("ExistsRunnable(failed): expected false")
	}

	// Runnable set is walked in created_at ASC order; the exhausted job is skipped.
	want := []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}
	for i, id := range want {
		claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != id {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, id, claim)
		}
		if claim.Status != types.JobStatusRunning {
			t.Fatalf("ClaimNextRunnable #%d: expected running, got %q", i+1, claim.Status)
		}
	}

	claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable (drained): %v", err)
	}
	if claim != nil {
		t.Fatalf("ClaimNextRunnable (drained): expected nil, got %v", claim)
	}

	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{"status": types.JobStatusSucceeded, "stage": "done"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := repo.GetByID(dbc, queued.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.Status != types.JobStatusSucceeded || got.Attempts != 1 {
		t.Fatalf("after update: status=%q attempts=%d", got.Status, got.Attempts)
	}

	if err := repo.Heartbeat(dbc, failed.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}
