package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Or returns the transaction when one is attached, otherwise root bound to Ctx.
func (c Context) Or(root *gorm.DB) *gorm.DB {
	txx := c.Tx
	if txx == nil {
		txx = root
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return txx.WithContext(ctx)
}
