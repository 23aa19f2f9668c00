package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
)

// PointsQueryService 积分引擎读侧服务
type PointsQueryService struct {
	accounts    domain.AccountRepository
	txns        domain.TransactionRepository
	daily       domain.DailyRepository
	milestones  domain.MilestoneRepository
	leaderboard domain.LeaderboardRepository
	detector    *domain.MilestoneDetector
	levels      *domain.LevelTable
	logger      *slog.Logger
}

// NewPointsQueryService 组装读侧服务
func NewPointsQueryService(
	accounts domain.AccountRepository,
	txns domain.TransactionRepository,
	daily domain.DailyRepository,
	milestones domain.MilestoneRepository,
	leaderboard domain.LeaderboardRepository,
	detector *domain.MilestoneDetector,
	levels *domain.LevelTable,
	logger *slog.Logger,
) *PointsQueryService {
	return &PointsQueryService{
		accounts:    accounts,
		txns:        txns,
		daily:       daily,
		milestones:  milestones,
		leaderboard: leaderboard,
		detector:    detector,
		levels:      levels,
		logger:      logger.With("service", "points_query"),
	}
}

// GetSummary 账户概要（含下一等级门槛与排行榜名次）
func (q *PointsQueryService) GetSummary(ctx context.Context, accountID string) (*AccountSummaryDTO, error) {
	acc, err := q.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	dto := &AccountSummaryDTO{
		AccountID:        acc.AccountID,
		Level:            acc.Level,
		LevelPoints:      acc.LevelPoints,
		ExperiencePoints: acc.ExperiencePoints,
		CasesCompleted:   acc.CasesCompleted,
		CasesWon:         acc.CasesWon,
		CasesFailed:      acc.CasesFailed,
		SuccessRate:      acc.SuccessRate.String(),
		ClientRating:     acc.ClientRating.String(),
		TotalRevenue:     acc.TotalRevenue.String(),
		UpgradeEligible:  acc.UpgradeEligible,
		DowngradeRisk:    acc.DowngradeRisk,
		Suspended:        acc.Suspended,
	}

	if next, ok := q.levels.Next(acc.Level); ok {
		dto.NextLevel = next.Level
		dto.NextLevelPoints = next.LevelPoints
		dto.NextLevelCases = next.CasesCompleted
	}

	if q.leaderboard != nil {
		if rank, err := q.leaderboard.Rank(ctx, accountID); err == nil && rank >= 0 {
			dto.LeaderboardRank = rank + 1
		}
	}

	return dto, nil
}

// ListTransactions 分页查询流水
func (q *PointsQueryService) ListTransactions(ctx context.Context, accountID string, offset, limit int) ([]*TransactionDTO, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txns, total, err := q.txns.ListByAccount(ctx, accountID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]*TransactionDTO, len(txns))
	for i, t := range txns {
		dtos[i] = &TransactionDTO{
			TransactionID:     t.TransactionID,
			Action:            string(t.Action),
			BasePoints:        t.BasePoints,
			MultiplierApplied: t.MultiplierApplied.String(),
			PointsChange:      t.PointsChange,
			PointsBefore:      t.PointsBefore,
			PointsAfter:       t.PointsAfter,
			OccurredAt:        t.OccurredAt,
		}
	}
	return dtos, total, nil
}

// ListDailyBuckets 查询日期范围内的日桶
func (q *PointsQueryService) ListDailyBuckets(ctx context.Context, accountID string, from, to time.Time) ([]*DailyBucketDTO, error) {
	buckets, err := q.daily.ListBuckets(ctx, accountID, domain.DayOf(from), domain.DayOf(to))
	if err != nil {
		return nil, err
	}
	domain.SortBucketsByDate(buckets)

	dtos := make([]*DailyBucketDTO, len(buckets))
	for i, b := range buckets {
		breakdown := make(map[string]int64, len(b.Breakdown))
		for k, v := range b.Breakdown {
			breakdown[string(k)] = v
		}
		dtos[i] = &DailyBucketDTO{
			Date:          b.Date.Format("2006-01-02"),
			TotalScore:    b.TotalScore,
			ActivityCount: b.ActivityCount,
			Breakdown:     breakdown,
			FirstActivity: b.FirstActivity,
			LastActivity:  b.LastActivity,
		}
	}
	return dtos, nil
}

// ListMilestones 全部里程碑（已达成与进行中的进度）
func (q *PointsQueryService) ListMilestones(ctx context.Context, accountID string) ([]*MilestoneDTO, error) {
	acc, err := q.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	achievedList, err := q.milestones.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	achievedByKey := make(map[domain.MilestoneKey]*domain.Milestone, len(achievedList))
	for _, m := range achievedList {
		achievedByKey[m.Key] = m
	}

	activeDates, err := q.daily.ActiveDates(ctx, accountID, 60)
	if err != nil {
		return nil, err
	}
	totalDays, err := q.daily.TotalActiveDays(ctx, accountID)
	if err != nil {
		return nil, err
	}
	bestDay, err := q.daily.BestDayScore(ctx, accountID)
	if err != nil {
		return nil, err
	}
	metrics := domain.StreakMetrics{
		ConsecutiveActiveDays: domain.ConsecutiveActiveDays(activeDates, time.Now()),
		TotalActiveDays:       totalDays,
		TotalScore:            acc.ExperiencePoints,
		BestDayScore:          bestDay,
		CasesCompleted:        acc.CasesCompleted,
	}

	specs := q.detector.Specs()
	dtos := make([]*MilestoneDTO, len(specs))
	for i, spec := range specs {
		dto := &MilestoneDTO{
			Key:          string(spec.Key),
			Title:        spec.Title,
			Metric:       string(spec.Metric),
			Threshold:    spec.Threshold,
			CurrentValue: q.detector.MetricValue(spec.Metric, metrics),
			RewardPoints: spec.RewardPoints,
		}
		if m, ok := achievedByKey[spec.Key]; ok {
			dto.Achieved = true
			at := m.AchievedAt
			dto.AchievedAt = &at
			dto.CurrentValue = m.AchievedValue
		}
		dtos[i] = dto
	}
	return dtos, nil
}

// Leaderboard 排行榜前 N 名
func (q *PointsQueryService) Leaderboard(ctx context.Context, n int64) ([]domain.LeaderboardEntry, error) {
	if q.leaderboard == nil {
		return []domain.LeaderboardEntry{}, nil
	}
	if n <= 0 || n > 100 {
		n = 10
	}
	return q.leaderboard.Top(ctx, n)
}

// Reconcile 对账：校验账户余额可由全量流水重建
func (q *PointsQueryService) Reconcile(ctx context.Context, accountID string) (*ReconciliationDTO, error) {
	acc, err := q.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := q.txns.SumChanges(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &ReconciliationDTO{
		AccountID:   accountID,
		LedgerSum:   sum,
		LevelPoints: acc.LevelPoints,
		Consistent:  sum == acc.LevelPoints,
	}, nil
}
