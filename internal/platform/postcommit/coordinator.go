package postcommit

import (
	"context"

	"gorm.io/gorm"
)

// Coordinator owns the write transaction and the hook list attached to it.
type Coordinator struct {
	db     *gorm.DB
	runner Runner
}

func NewCoordinator(db *gorm.DB, runner Runner) *Coordinator {
	return &Coordinator{db: db, runner: runner}
}

// Run executes fn inside a transaction. Hooks registered by fn are handed to
// the runner only after the commit succeeds, and are dropped on rollback.
func (c *Coordinator) Run(ctx context.Context, fn func(txx *gorm.DB, hooks *Hooks) error) error {
	return c.RunThen(ctx, fn, nil)
}

// RunThen is Run with a synchronous step between commit and dispatch.
// onCommit sees the committed state before any hook is submitted.
func (c *Coordinator) RunThen(ctx context.Context, fn func(txx *gorm.DB, hooks *Hooks) error, onCommit func()) error {
	hooks := &Hooks{}
	err := c.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		return fn(txx, hooks)
	})
	if err != nil {
		return err
	}
	if onCommit != nil {
		onCommit()
	}
	c.Dispatch(ctx, hooks)
	return nil
}

// Dispatch submits already-committed hooks.
func (c *Coordinator) Dispatch(ctx context.Context, hooks *Hooks) {
	if c.runner == nil {
		return
	}
	for _, t := range hooks.Tasks() {
		c.runner.Submit(ctx, t)
	}
}
