package redis

import (
	"context"
	"log/slog"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/cache"
)

const leaderboardKey = "points:leaderboard"

// leaderboardRepository 积分排行榜 Redis ZSET 实现。
// 排行榜是尽力而为的读侧缓存，写失败不影响积分主流程；
// 分数以等级积分为口径，按每笔流水的带符号变更累计，扣分会回落。
type leaderboardRepository struct {
	cache  *cache.RedisCache
	logger *slog.Logger
}

// NewLeaderboardRepository 创建排行榜仓储
func NewLeaderboardRepository(c *cache.RedisCache, logger *slog.Logger) domain.LeaderboardRepository {
	return &leaderboardRepository{cache: c, logger: logger}
}

func (r *leaderboardRepository) AddScore(ctx context.Context, accountID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	_, err := r.cache.ZIncrBy(ctx, leaderboardKey, float64(delta), accountID)
	return err
}

func (r *leaderboardRepository) Top(ctx context.Context, n int64) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := r.cache.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		accountID, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			AccountID: accountID,
			Score:     int64(m.Score),
			Rank:      int64(i) + 1,
		})
	}
	return entries, nil
}

// Rank 返回零基名次，账户不在榜上时返回 -1
func (r *leaderboardRepository) Rank(ctx context.Context, accountID string) (int64, error) {
	return r.cache.ZRevRank(ctx, leaderboardKey, accountID)
}
