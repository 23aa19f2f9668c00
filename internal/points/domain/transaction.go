package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointTransaction 积分流水，只追加不修改。
// points_after = points_before + points_change 在任何时刻成立，
// 账户余额可由全量流水重建。
type PointTransaction struct {
	ID                uint            `json:"id"`
	TransactionID     string          `json:"transaction_id"`
	AccountID         string          `json:"account_id"`
	Action            ActionKind      `json:"action"`
	BasePoints        int64           `json:"base_points"`
	MultiplierApplied decimal.Decimal `json:"multiplier_applied"`
	PointsChange      int64           `json:"points_change"`
	PointsBefore      int64           `json:"points_before"`
	PointsAfter       int64           `json:"points_after"`
	Context           ActivityContext `json:"context"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
	OccurredAt        time.Time       `json:"occurred_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

