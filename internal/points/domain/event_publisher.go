package domain

import (
	"context"

	"gorm.io/gorm"
)

// EventPublisher 集成事件发布端口。
// PublishInTx 与账本写同事务落到 outbox，保证事件与流水一致提交（Outbox 模式）。
type EventPublisher interface {
	PublishInTx(ctx context.Context, tx *gorm.DB, topic, key string, payload any) error
}
