package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
)

// OutboxMessage 事件发件箱
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	Topic     string    `gorm:"type:varchar(100);index"`
	MsgKey    string    `gorm:"column:msg_key;type:varchar(128)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "points_outbox_messages"
}

// OutboxPublisher 使用 Outbox 模式发布积分领域事件：
// 事件与账本写入同事务落库，由后台中继异步投递到 Kafka。
type OutboxPublisher struct {
	db *gorm.DB
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher 创建新的 OutboxPublisher
func NewOutboxPublisher(db *gorm.DB) *OutboxPublisher {
	return &OutboxPublisher{db: db}
}

// PublishInTx 在给定事务内写入发件箱，与业务写同提交同回滚
func (p *OutboxPublisher) PublishInTx(ctx context.Context, tx *gorm.DB, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	message := OutboxMessage{
		ID:        uuid.NewString(),
		Topic:     topic,
		MsgKey:    key,
		Payload:   string(body),
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	handle := tx
	if handle == nil {
		handle = p.db
	}
	return handle.WithContext(ctx).Create(&message).Error
}

// PendingCount 待投递消息数，供指标上报
func (p *OutboxPublisher) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("status = ?", "pending").
		Count(&count).Error
	return count, err
}

// CleanupProcessedMessages 清理已投递的消息
func (p *OutboxPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", "sent", before).
		Delete(&OutboxMessage{}).Error
}
