package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
	pointsdomain "github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/cache"
)

const tierCacheTTL = 5 * time.Minute

// TierProviderAdapter 向积分引擎暴露档位查询端口。
// 读路径走 Redis 缓存，未命中回源到会员仓储；到期会员按免费档返回。
type TierProviderAdapter struct {
	service *MembershipService
	catalog *domain.TierCatalog
	cache   *cache.RedisCache
	logger  *slog.Logger
}

var _ pointsdomain.TierProvider = (*TierProviderAdapter)(nil)

// NewTierProviderAdapter 创建档位查询适配器
func NewTierProviderAdapter(service *MembershipService, catalog *domain.TierCatalog, c *cache.RedisCache, logger *slog.Logger) *TierProviderAdapter {
	return &TierProviderAdapter{
		service: service,
		catalog: catalog,
		cache:   c,
		logger:  logger.With("service", "membership.tier_provider"),
	}
}

// TierMultiplier 返回账户当前档位信息
func (a *TierProviderAdapter) TierMultiplier(ctx context.Context, accountID string) (pointsdomain.TierInfo, error) {
	if a.cache != nil {
		var cached pointsdomain.TierInfo
		if err := a.cache.GetJSON(ctx, tierCacheKey(accountID), &cached); err == nil && cached.TierName != "" {
			return cached, nil
		}
	}

	m, err := a.service.GetMembership(ctx, accountID)
	if err != nil {
		return pointsdomain.TierInfo{}, err
	}

	tier, err := a.service.effectiveTier(m, time.Now())
	if err != nil {
		return pointsdomain.TierInfo{}, err
	}

	info := pointsdomain.TierInfo{
		TierName:       string(tier.Name),
		Multiplier:     tier.Multiplier,
		DailyCaseLimit: tier.DailyCaseLimit,
	}
	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, tierCacheKey(accountID), info, tierCacheTTL); err != nil {
			a.logger.Warn("档位缓存写入失败", "account_id", accountID, "error", err)
		}
	}
	return info, nil
}
