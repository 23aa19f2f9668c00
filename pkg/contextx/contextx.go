// Package contextx 提供事务上下文传递，应用层在 context 中携带 *gorm.DB 事务句柄
package contextx

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx 将事务句柄写入 context
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Tx 从 context 中取出事务句柄；未开启事务时返回 fallback
func Tx(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback.WithContext(ctx)
}
