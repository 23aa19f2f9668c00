package messaging

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/pkg/metrics"
	"github.com/ronalzhang/lawsker-sub001/pkg/mq"
)

// OutboxRelay 发件箱中继：周期扫描 pending 消息并投递到 Kafka。
// 至少一次投递语义，下游消费者按事件键幂等处理。
type OutboxRelay struct {
	db        *gorm.DB
	producer  *mq.KafkaProducer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	stop      chan struct{}
}

// NewOutboxRelay 创建发件箱中继
func NewOutboxRelay(db *gorm.DB, producer *mq.KafkaProducer, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxRelay{
		db:        db,
		producer:  producer,
		metrics:   m,
		logger:    logger,
		interval:  interval,
		batchSize: 100,
		stop:      make(chan struct{}),
	}
}

// Start 启动中继循环，阻塞直到 ctx 取消或 Stop 被调用
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("发件箱中继启动", "interval", r.interval.String())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				r.logger.Error("发件箱批量投递失败", "error", err)
			}
		}
	}
}

// Stop 停止中继循环
func (r *OutboxRelay) Stop() {
	close(r.stop)
}

func (r *OutboxRelay) relayBatch(ctx context.Context) error {
	var messages []OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	for i := range messages {
		msg := &messages[i]
		if err := r.producer.SendRaw(ctx, msg.Topic, msg.MsgKey, []byte(msg.Payload)); err != nil {
			r.logger.Warn("事件投递失败，待下轮重试",
				"message_id", msg.ID, "topic", msg.Topic, "error", err)
			break
		}
		err := r.db.WithContext(ctx).
			Model(&OutboxMessage{}).
			Where("id = ?", msg.ID).
			Updates(map[string]any{"status": "sent", "updated_at": time.Now()}).Error
		if err != nil {
			return err
		}
	}

	var pending int64
	if err := r.db.WithContext(ctx).
		Model(&OutboxMessage{}).
		Where("status = ?", "pending").
		Count(&pending).Error; err == nil && r.metrics != nil {
		r.metrics.OutboxPending.Set(float64(pending))
	}
	return nil
}
