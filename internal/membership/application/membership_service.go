package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/cache"
)

// MembershipService 会员应用服务：档位变更、续期与 AI 点数管理
type MembershipService struct {
	repo    domain.MembershipRepository
	catalog *domain.TierCatalog
	cache   *cache.RedisCache
	logger  *slog.Logger
}

// NewMembershipService 创建会员应用服务
func NewMembershipService(
	repo domain.MembershipRepository,
	catalog *domain.TierCatalog,
	c *cache.RedisCache,
	logger *slog.Logger,
) *MembershipService {
	return &MembershipService{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		logger:  logger.With("service", "membership"),
	}
}

// GetMembership 查询会员关系，不存在时懒创建免费档
func (s *MembershipService) GetMembership(ctx context.Context, accountID string) (*domain.Membership, error) {
	m, err := s.repo.Get(ctx, accountID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrMembershipNotFound) {
		return nil, err
	}

	m = domain.NewMembership(accountID, s.catalog.BaseTier(), time.Now())
	if err := s.repo.Create(ctx, m); err != nil {
		// 并发懒创建竞争时回读既有记录
		if existing, getErr := s.repo.Get(ctx, accountID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return m, nil
}

// Upgrade 升级到更高档位
func (s *MembershipService) Upgrade(ctx context.Context, accountID string, tierName domain.TierName, months int) (*domain.Membership, error) {
	tier, err := s.catalog.Get(tierName)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 1
	}

	m, err := s.GetMembership(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if m.Tier == tierName && !m.Expired(time.Now()) {
		return nil, domain.ErrAlreadyOnTier
	}
	if s.catalog.Rank(tierName) < s.catalog.Rank(m.Tier) {
		return nil, fmt.Errorf("cannot upgrade %s to lower tier %s", m.Tier, tierName)
	}

	m.UpgradeTo(tier, months, time.Now())
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, err
	}
	s.invalidateTierCache(ctx, accountID)
	s.logger.Info("会员升级", "account_id", accountID, "tier", tierName, "expires_at", m.ExpiresAt)
	return m, nil
}

// Renew 按当前档位续期
func (s *MembershipService) Renew(ctx context.Context, accountID string, months int) (*domain.Membership, error) {
	if months <= 0 {
		months = 1
	}
	m, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	m.Renew(months, time.Now())
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, err
	}
	s.invalidateTierCache(ctx, accountID)
	return m, nil
}

// ConsumeCredits 扣减 AI 点数，扣减前先做月度额度补发
func (s *MembershipService) ConsumeCredits(ctx context.Context, accountID string, n int64) (*domain.Membership, error) {
	m, err := s.GetMembership(ctx, accountID)
	if err != nil {
		return nil, err
	}

	tier, err := s.effectiveTier(m, time.Now())
	if err != nil {
		return nil, err
	}
	m.GrantMonthlyCredits(tier, time.Now())

	if err := m.ConsumeCredits(n); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DowngradeExpired 把单个到期会员回落到免费档
func (s *MembershipService) DowngradeExpired(ctx context.Context, m *domain.Membership) error {
	now := time.Now()
	if !m.Expired(now) {
		return nil
	}
	m.DowngradeToBase(s.catalog.BaseTier(), now)
	if err := s.repo.Save(ctx, m); err != nil {
		return err
	}
	s.invalidateTierCache(ctx, m.AccountID)
	s.logger.Info("会员到期降级", "account_id", m.AccountID)
	return nil
}

// effectiveTier 考虑到期回落后的有效档位
func (s *MembershipService) effectiveTier(m *domain.Membership, now time.Time) (domain.Tier, error) {
	if m.Expired(now) {
		return s.catalog.BaseTier(), nil
	}
	return s.catalog.Get(m.Tier)
}

func (s *MembershipService) invalidateTierCache(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tierCacheKey(accountID)); err != nil {
		s.logger.Warn("档位缓存失效失败", "account_id", accountID, "error", err)
	}
}

func tierCacheKey(accountID string) string {
	return "membership:tier:" + accountID
}
