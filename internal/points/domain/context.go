package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityContext 行为上下文，携带影响乘数的可选信号。
// 已知信号使用具名字段，未来扩展信号放入 Extra，新调用方加字段不破坏旧调用方。
type ActivityContext struct {
	// 案件金额（元）
	CaseAmount *decimal.Decimal `json:"case_amount,omitempty"`
	// 完成耗时（小时）
	CompletionHours *float64 `json:"completion_hours,omitempty"`
	// 客户评分（1-5）
	ClientRating *float64 `json:"client_rating,omitempty"`
	// 质量评分（0-100）
	QualityScore *float64 `json:"quality_score,omitempty"`
	// 响应延迟（分钟）
	ResponseLatencyMinutes *int `json:"response_latency_minutes,omitempty"`
	// 拒单原因
	DeclineReason string `json:"decline_reason,omitempty"`
	// 行为发生时间，零值时由引擎取当前时间
	OccurredAt time.Time `json:"occurred_at,omitempty"`
	// 幂等键，上游 at-least-once 投递时用于安全重试
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	// 扩展字段
	Extra map[string]string `json:"extra,omitempty"`
}

// EffectiveTime 返回行为发生时间，未填时取 now
func (c ActivityContext) EffectiveTime(now time.Time) time.Time {
	if c.OccurredAt.IsZero() {
		return now
	}
	return c.OccurredAt
}
