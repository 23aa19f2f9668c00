package domain

import "time"

// 集成事件 topic
const (
	TopicPointsTransaction = "points.transaction"
	TopicLevelUp           = "points.levelup"
	TopicMilestoneAwarded  = "points.milestone"
	TopicSuspensionSignal  = "account.suspension"
)

// PointsChangedEvent 积分流水落账事件
type PointsChangedEvent struct {
	TransactionID string     `json:"transaction_id"`
	AccountID     string     `json:"account_id"`
	Action        ActionKind `json:"action"`
	PointsChange  int64      `json:"points_change"`
	PointsAfter   int64      `json:"points_after"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// LeveledUpEvent 等级晋升事件（通知协作方 fire-and-forget）
type LeveledUpEvent struct {
	AccountID string    `json:"account_id"`
	OldLevel  int       `json:"old_level"`
	NewLevel  int       `json:"new_level"`
	At        time.Time `json:"at"`
}

// MilestoneAwardedEvent 里程碑发放事件
type MilestoneAwardedEvent struct {
	AccountID    string       `json:"account_id"`
	Key          MilestoneKey `json:"key"`
	RewardPoints int64        `json:"reward_points"`
	At           time.Time    `json:"at"`
}

// SuspensionSignalEvent 暂停信号。
// 本引擎只发信号不回读确认，账户状态翻转由账户状态服务完成。
type SuspensionSignalEvent struct {
	AccountID           string    `json:"account_id"`
	ConsecutiveDeclines int       `json:"consecutive_declines"`
	Threshold           int       `json:"threshold"`
	At                  time.Time `json:"at"`
}
