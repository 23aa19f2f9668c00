package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTierCatalog(t *testing.T) {
	catalog := NewDefaultTierCatalog()

	free, err := catalog.Get(TierFree)
	require.NoError(t, err)
	assert.Equal(t, 1.0, free.Multiplier)

	pro, err := catalog.Get(TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, 2.0, pro.Multiplier)

	_, err = catalog.Get(TierName("platinum"))
	assert.ErrorIs(t, err, ErrUnknownTier)

	assert.Equal(t, TierFree, catalog.BaseTier().Name)
	assert.Less(t, catalog.Rank(TierFree), catalog.Rank(TierEnterprise))
	assert.Equal(t, -1, catalog.Rank(TierName("platinum")))
}

func TestMembershipLifecycle(t *testing.T) {
	catalog := NewDefaultTierCatalog()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.Local)

	m := NewMembership("lawyer-001", catalog.BaseTier(), now)
	assert.Equal(t, TierFree, m.Tier)
	assert.False(t, m.Expired(now.AddDate(10, 0, 0)), "免费档永不过期")

	pro, _ := catalog.Get(TierProfessional)
	m.UpgradeTo(pro, 2, now)
	assert.Equal(t, TierProfessional, m.Tier)
	assert.Equal(t, now.AddDate(0, 2, 0), m.ExpiresAt)
	assert.Equal(t, pro.MonthlyAICredits, m.AICreditsRemaining)

	assert.False(t, m.Expired(now.AddDate(0, 1, 0)))
	assert.True(t, m.Expired(now.AddDate(0, 3, 0)))

	// 未到期续期从原到期时间顺延
	m.Renew(1, now.AddDate(0, 1, 0))
	assert.Equal(t, now.AddDate(0, 3, 0), m.ExpiresAt)

	// 到期后续期从当前时间起算
	late := now.AddDate(0, 6, 0)
	m.Renew(1, late)
	assert.Equal(t, late.AddDate(0, 1, 0), m.ExpiresAt)
}

func TestDowngradeToBaseClampsCredits(t *testing.T) {
	catalog := NewDefaultTierCatalog()
	now := time.Now()

	m := NewMembership("lawyer-001", catalog.BaseTier(), now)
	pro, _ := catalog.Get(TierProfessional)
	m.UpgradeTo(pro, 1, now)
	require.Equal(t, int64(500), m.AICreditsRemaining)

	m.DowngradeToBase(catalog.BaseTier(), now.AddDate(0, 2, 0))
	assert.Equal(t, TierFree, m.Tier)
	assert.True(t, m.ExpiresAt.IsZero())
	assert.Equal(t, int64(20), m.AICreditsRemaining, "剩余点数收敛到免费档额度")
}

func TestConsumeCredits(t *testing.T) {
	catalog := NewDefaultTierCatalog()
	m := NewMembership("lawyer-001", catalog.BaseTier(), time.Now())
	require.Equal(t, int64(20), m.AICreditsRemaining)

	require.NoError(t, m.ConsumeCredits(15))
	assert.Equal(t, int64(5), m.AICreditsRemaining)

	assert.ErrorIs(t, m.ConsumeCredits(6), ErrInsufficientCredit)
	assert.Equal(t, int64(5), m.AICreditsRemaining, "失败的扣减不生效")

	require.NoError(t, m.ConsumeCredits(0))
}

func TestGrantMonthlyCredits(t *testing.T) {
	catalog := NewDefaultTierCatalog()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local)
	m := NewMembership("lawyer-001", catalog.BaseTier(), now)
	require.NoError(t, m.ConsumeCredits(20))

	free := catalog.BaseTier()
	assert.False(t, m.GrantMonthlyCredits(free, now.AddDate(0, 0, 15)), "未满一个月不补发")
	assert.Zero(t, m.AICreditsRemaining)

	assert.True(t, m.GrantMonthlyCredits(free, now.AddDate(0, 1, 0)))
	assert.Equal(t, int64(20), m.AICreditsRemaining)
}
