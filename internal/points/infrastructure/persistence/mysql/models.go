package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountModel 积分账户 GORM 模型
type AccountModel struct {
	gorm.Model
	AccountID           string          `gorm:"column:account_id;uniqueIndex;type:varchar(64);not null"`
	Level               int             `gorm:"column:level;not null;default:1"`
	LevelPoints         int64           `gorm:"column:level_points;not null;default:0"`
	ExperiencePoints    int64           `gorm:"column:experience_points;not null;default:0"`
	CasesCompleted      int64           `gorm:"column:cases_completed;not null;default:0"`
	CasesWon            int64           `gorm:"column:cases_won;not null;default:0"`
	CasesFailed         int64           `gorm:"column:cases_failed;not null;default:0"`
	SuccessRate         decimal.Decimal `gorm:"column:success_rate;type:decimal(8,4);not null;default:0"`
	ClientRating        decimal.Decimal `gorm:"column:client_rating;type:decimal(4,2);not null;default:0"`
	TotalRevenue        decimal.Decimal `gorm:"column:total_revenue;type:decimal(18,2);not null;default:0"`
	ConsecutiveDeclines int             `gorm:"column:consecutive_declines;not null;default:0"`
	UpgradeEligible     bool            `gorm:"column:upgrade_eligible;not null;default:false"`
	DowngradeRisk       bool            `gorm:"column:downgrade_risk;not null;default:false"`
	Suspended           bool            `gorm:"column:suspended;not null;default:false"`
	Version             int64           `gorm:"column:version;not null;default:0"`
}

func (AccountModel) TableName() string { return "point_accounts" }

// TransactionModel 积分流水 GORM 模型（只追加）
type TransactionModel struct {
	gorm.Model
	TransactionID     string          `gorm:"column:transaction_id;uniqueIndex;type:varchar(64);not null"`
	AccountID         string          `gorm:"column:account_id;index:idx_account_created;uniqueIndex:uk_account_idem;type:varchar(64);not null"`
	Action            string          `gorm:"column:action;index;type:varchar(64);not null"`
	BasePoints        int64           `gorm:"column:base_points;not null"`
	MultiplierApplied decimal.Decimal `gorm:"column:multiplier_applied;type:decimal(8,4);not null"`
	PointsChange      int64           `gorm:"column:points_change;not null"`
	PointsBefore      int64           `gorm:"column:points_before;not null"`
	PointsAfter       int64           `gorm:"column:points_after;not null"`
	ContextJSON       string          `gorm:"column:context_json;type:text"`
	IdempotencyKey    *string         `gorm:"column:idempotency_key;uniqueIndex:uk_account_idem;type:varchar(128)"`
	OccurredAt        time.Time       `gorm:"column:occurred_at;index:idx_account_created"`
}

func (TransactionModel) TableName() string { return "point_transactions" }

// DailyBucketModel 日活动桶 GORM 模型
type DailyBucketModel struct {
	gorm.Model
	AccountID     string    `gorm:"column:account_id;uniqueIndex:uk_account_date;type:varchar(64);not null"`
	Date          time.Time `gorm:"column:bucket_date;uniqueIndex:uk_account_date;type:date;not null"`
	TotalScore    int64     `gorm:"column:total_score;not null;default:0"`
	ActivityCount int64     `gorm:"column:activity_count;not null;default:0"`
	BreakdownJSON string    `gorm:"column:breakdown_json;type:text"`
	FirstActivity time.Time `gorm:"column:first_activity"`
	LastActivity  time.Time `gorm:"column:last_activity"`
}

func (DailyBucketModel) TableName() string { return "daily_activity_buckets" }

// DailyCapModel 日上限计数器 GORM 模型
type DailyCapModel struct {
	gorm.Model
	AccountID string    `gorm:"column:account_id;uniqueIndex:uk_account_action_date;type:varchar(64);not null"`
	Action    string    `gorm:"column:action;uniqueIndex:uk_account_action_date;type:varchar(64);not null"`
	Date      time.Time `gorm:"column:cap_date;uniqueIndex:uk_account_action_date;type:date;not null"`
	Completed int       `gorm:"column:completed;not null;default:0"`
	MaxPerDay int       `gorm:"column:max_per_day;not null"`
}

func (DailyCapModel) TableName() string { return "daily_task_caps" }

// MilestoneModel 里程碑 GORM 模型，(account_id, milestone_key) 唯一
type MilestoneModel struct {
	gorm.Model
	AccountID     string    `gorm:"column:account_id;uniqueIndex:uk_account_milestone;type:varchar(64);not null"`
	MilestoneKey  string    `gorm:"column:milestone_key;uniqueIndex:uk_account_milestone;type:varchar(64);not null"`
	Metric        string    `gorm:"column:metric;type:varchar(64);not null"`
	Threshold     int64     `gorm:"column:threshold;not null"`
	AchievedValue int64     `gorm:"column:achieved_value;not null"`
	RewardPoints  int64     `gorm:"column:reward_points;not null"`
	AchievedAt    time.Time `gorm:"column:achieved_at;not null"`
}

func (MilestoneModel) TableName() string { return "point_milestones" }
