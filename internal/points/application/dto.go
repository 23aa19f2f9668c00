package application

import (
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
)

// RecordActivityCommand 记录一次律师行为
type RecordActivityCommand struct {
	AccountID string                 `json:"account_id"`
	Action    domain.ActionKind      `json:"action"`
	Context   domain.ActivityContext `json:"context"`
}

// TransactionResultDTO record_activity 的对外结果
type TransactionResultDTO struct {
	TransactionID     string   `json:"transaction_id"`
	PointsEarned      int64    `json:"points_earned"`
	MultiplierApplied string   `json:"multiplier_applied"`
	PointsBefore      int64    `json:"points_before"`
	PointsAfter       int64    `json:"points_after"`
	LeveledUp         bool     `json:"leveled_up"`
	NewLevel          int      `json:"new_level,omitempty"`
	MilestonesAwarded []string `json:"milestones_awarded"`
	CapExceeded       bool     `json:"cap_exceeded"`
}

// AccountSummaryDTO 账户概要
type AccountSummaryDTO struct {
	AccountID        string `json:"account_id"`
	Level            int    `json:"level"`
	LevelPoints      int64  `json:"level_points"`
	ExperiencePoints int64  `json:"experience_points"`
	CasesCompleted   int64  `json:"cases_completed"`
	CasesWon         int64  `json:"cases_won"`
	CasesFailed      int64  `json:"cases_failed"`
	SuccessRate      string `json:"success_rate"`
	ClientRating     string `json:"client_rating"`
	TotalRevenue     string `json:"total_revenue"`
	UpgradeEligible  bool   `json:"upgrade_eligible"`
	DowngradeRisk    bool   `json:"downgrade_risk"`
	Suspended        bool   `json:"suspended"`
	NextLevel        int    `json:"next_level,omitempty"`
	NextLevelPoints  int64  `json:"next_level_points,omitempty"`
	NextLevelCases   int64  `json:"next_level_cases,omitempty"`
	LeaderboardRank  int64  `json:"leaderboard_rank,omitempty"`
}

// TransactionDTO 流水条目
type TransactionDTO struct {
	TransactionID     string    `json:"transaction_id"`
	Action            string    `json:"action"`
	BasePoints        int64     `json:"base_points"`
	MultiplierApplied string    `json:"multiplier_applied"`
	PointsChange      int64     `json:"points_change"`
	PointsBefore      int64     `json:"points_before"`
	PointsAfter       int64     `json:"points_after"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// DailyBucketDTO 日桶
type DailyBucketDTO struct {
	Date          string           `json:"date"`
	TotalScore    int64            `json:"total_score"`
	ActivityCount int64            `json:"activity_count"`
	Breakdown     map[string]int64 `json:"breakdown"`
	FirstActivity time.Time        `json:"first_activity"`
	LastActivity  time.Time        `json:"last_activity"`
}

// MilestoneDTO 里程碑（含未达成的进度）
type MilestoneDTO struct {
	Key          string     `json:"key"`
	Title        string     `json:"title"`
	Metric       string     `json:"metric"`
	Threshold    int64      `json:"threshold"`
	CurrentValue int64      `json:"current_value"`
	RewardPoints int64      `json:"reward_points"`
	Achieved     bool       `json:"achieved"`
	AchievedAt   *time.Time `json:"achieved_at,omitempty"`
}

// ReconciliationDTO 余额对账结果
type ReconciliationDTO struct {
	AccountID   string `json:"account_id"`
	LedgerSum   int64  `json:"ledger_sum"`
	LevelPoints int64  `json:"level_points"`
	Consistent  bool   `json:"consistent"`
}
