package user

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/data/repos/testutil"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	created, err := repo.Create(dbc, []*types.User{
		{ID: uuid.New(), Email: "userrepo@example.com", Name: "Ada"},
		{ID: uuid.New(), Email: "userrepo2@example.com", Name: "Brian"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Create: expected 2 users, got %d", len(created))
	}

	got, err := repo.GetByID(dbc, created[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Name != "Ada" {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("GetByID(missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByID(missing): expected nil, got %+v", missing)
	}

	gotByIDs, err := repo.GetByIDs(dbc, []uuid.UUID{created[0].ID, created[1].ID, uuid.New()})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(gotByIDs) != 2 {
		t.Fatalf("GetByIDs: expected 2, got %d", len(gotByIDs))
	}

	empty, err := repo.GetByIDs(dbc, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("GetByIDs(nil): err=%v len=%d", err, len(empty))
	}
}
