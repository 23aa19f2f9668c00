package domain

import (
	"context"
	"time"
)

// AccountRepository 积分账户仓储。
// 写路径约定：Get 读当前快照，Save 以乐观锁提交（版本不匹配返回 ErrWriteConflict）；
// GetForUpdate 在事务上下文中对账户行加悲观锁，两种串行化方式由仓储实现择一保证。
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, accountID string) (*Account, error)
	GetForUpdate(ctx context.Context, accountID string) (*Account, error)
	Save(ctx context.Context, account *Account) error
	List(ctx context.Context, offset, limit int) ([]*Account, error)
}

// TransactionRepository 积分流水仓储（只追加）
type TransactionRepository interface {
	Append(ctx context.Context, txn *PointTransaction) error
	FindByIdempotencyKey(ctx context.Context, accountID, key string) (*PointTransaction, error)
	ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]*PointTransaction, int64, error)
	// SumChanges 全量流水求和，用于对账（余额可重建性校验）
	SumChanges(ctx context.Context, accountID string) (int64, error)
}

// DailyRepository 日桶与日上限仓储
type DailyRepository interface {
	// RecordActivity 懒创建并累加日桶
	RecordActivity(ctx context.Context, accountID string, date time.Time, kind ActionKind, pointsChange int64, at time.Time) (*DailyActivityBucket, error)
	// TryIncrementCap 原子检查并递增 (账户, 行为, 日期) 计数；
	// 已达上限时返回 false 且不产生任何递增
	TryIncrementCap(ctx context.Context, accountID string, kind ActionKind, date time.Time, maxPerDay int) (bool, error)
	GetBucket(ctx context.Context, accountID string, date time.Time) (*DailyActivityBucket, error)
	ListBuckets(ctx context.Context, accountID string, from, to time.Time) ([]*DailyActivityBucket, error)
	// ActiveDates 最近 limit 个活跃日期（倒序），用于连击计算
	ActiveDates(ctx context.Context, accountID string, limit int) ([]time.Time, error)
	TotalActiveDays(ctx context.Context, accountID string) (int64, error)
	BestDayScore(ctx context.Context, accountID string) (int64, error)
}

// MilestoneRepository 里程碑仓储。
// InsertIfAbsent 是幂等写入原语：(account_id, key) 已存在时视为成功并返回 false。
type MilestoneRepository interface {
	InsertIfAbsent(ctx context.Context, milestone *Milestone) (inserted bool, err error)
	List(ctx context.Context, accountID string) ([]*Milestone, error)
	AchievedKeys(ctx context.Context, accountID string) (map[MilestoneKey]bool, error)
}

// LeaderboardRepository 积分排行榜（Redis ZSET），尽力而为的读侧缓存
type LeaderboardRepository interface {
	AddScore(ctx context.Context, accountID string, delta int64) error
	Top(ctx context.Context, n int64) ([]LeaderboardEntry, error)
	Rank(ctx context.Context, accountID string) (int64, error)
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	AccountID string `json:"account_id"`
	Score     int64  `json:"score"`
	Rank      int64  `json:"rank"`
}

// TierProvider 会员档位查询端口，由 membership 模块实现。
// 查询失败时调用方降级为基础 1.0 倍档位，不阻断主流程。
type TierProvider interface {
	TierMultiplier(ctx context.Context, accountID string) (TierInfo, error)
}

// TierInfo 引擎视角的档位信息
type TierInfo struct {
	TierName   string  `json:"tier_name"`
	Multiplier float64 `json:"multiplier"`
	// DailyCaseLimit 档位允许的每日接案上限；0 表示无档位限制
	DailyCaseLimit int `json:"daily_case_limit"`
}
