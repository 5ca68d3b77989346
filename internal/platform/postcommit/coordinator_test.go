package postcommit

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

type recordingRunner struct {
	names []string
}

func (r *recordingRunner) Submit(ctx context.Context, t Task) {
	r.names = append(r.names, t.Name)
	_ = t.Run(ctx)
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&note{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCoordinatorRunsHooksOnlyAfterCommit(t *testing.T) {
	db := openDB(t)
	runner := &recordingRunner{}
	c := NewCoordinator(db, runner)

	var seenRows int64
	err := c.Run(context.Background(), func(txx *gorm.DB, hooks *Hooks) error {
		if err := txx.Create(&note{Body: "hi"}).Error; err != nil {
			return err
		}
		hooks.After("k", "count", func(ctx context.Context) error {
			return db.WithContext(ctx).Model(&note{}).Count(&seenRows).Error
		})
		if len(runner.names) != 0 {
			t.Fatalf("hook submitted before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.names) != 1 || seenRows != 1 {
		t.Fatalf("hook should see committed row: names=%v rows=%d", runner.names, seenRows)
	}
}

func TestCoordinatorDropsHooksOnRollback(t *testing.T) {
	db := openDB(t)
	runner := &recordingRunner{}
	c := NewCoordinator(db, runner)

	wantErr := errors.New("rollback")
	err := c.Run(context.Background(), func(txx *gorm.DB, hooks *Hooks) error {
		_ = txx.Create(&note{Body: "lost"}).Error
		hooks.After("k", "never", func(ctx context.Context) error { return nil })
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run err: want=%v got=%v", wantErr, err)
	}
	if len(runner.names) != 0 {
		t.Fatalf("hooks must not run after rollback: %v", runner.names)
	}
	var n int64
	db.Model(&note{}).Count(&n)
	if n != 0 {
		t.Fatalf("row should have been rolled back, count=%d", n)
	}
}

func TestInlineSwallowsFailures(t *testing.T) {
	r := Inline{Log: logger.Nop()}
	r.Submit(context.Background(), Task{Name: "boom", Run: func(ctx context.Context) error { panic("x") }})
	r.Submit(context.Background(), Task{Name: "err", Run: func(ctx context.Context) error { return errors.New("x") }})
}

func TestCoordinatorRunThenOrdersCommitStepBeforeHooks(t *testing.T) {
	db := openDB(t)
	var order []string
	runner := &recordingRunner{}
	c := NewCoordinator(db, runner)

	err := c.RunThen(context.Background(), func(txx *gorm.DB, hooks *Hooks) error {
		hooks.After("k", "hook", func(ctx context.Context) error {
			order = append(order, "hook")
			return nil
		})
		return txx.Create(&note{Body: "x"}).Error
	}, func() { order = append(order, "commit") })
	if err != nil {
		t.Fatalf("RunThen: %v", err)
	}
	if len(order) != 2 || order[0] != "commit" || order[1] != "hook" {
		t.Fatalf("order = %v", order)
	}

	order = nil
	err = c.RunThen(context.Background(), func(txx *gorm.DB, hooks *Hooks) error {
		return errors.New("boom")
	}, func() { order = append(order, "commit") })
	if err == nil || len(order) != 0 {
		t.Fatalf("err=%v order=%v", err, order)
	}
}
