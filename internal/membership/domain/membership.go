package domain

import (
	"errors"
	"time"
)

// TierName 会员档位名
type TierName string

const (
	TierFree         TierName = "free"
	TierProfessional TierName = "professional"
	TierEnterprise   TierName = "enterprise"
)

var (
	ErrMembershipNotFound = errors.New("membership not found")
	ErrUnknownTier        = errors.New("unknown membership tier")
	ErrInsufficientCredit = errors.New("insufficient ai credits")
	ErrAlreadyOnTier      = errors.New("membership already on requested tier")
)

// Tier 档位权益配置。积分引擎侧消费 Multiplier 与 DailyCaseLimit，
// AI 点数与金额上限由本模块自身管理。
type Tier struct {
	Name TierName `json:"name"`
	// 积分倍率
	Multiplier float64 `json:"multiplier"`
	// 每月赠送 AI 点数
	MonthlyAICredits int64 `json:"monthly_ai_credits"`
	// 每日接案上限，0 表示不限
	DailyCaseLimit int `json:"daily_case_limit"`
	// 单月接案金额上限（元），0 表示不限
	MonthlyAmountLimit int64 `json:"monthly_amount_limit"`
	// 月费（元）
	MonthlyFee int64 `json:"monthly_fee"`
}

// TierCatalog 档位目录，构造时注入、运行期只读
type TierCatalog struct {
	tiers map[TierName]Tier
	order []TierName
}

// NewDefaultTierCatalog 默认三档目录
func NewDefaultTierCatalog() *TierCatalog {
	return NewTierCatalog([]Tier{
		{Name: TierFree, Multiplier: 1.0, MonthlyAICredits: 20, DailyCaseLimit: 2, MonthlyAmountLimit: 50000, MonthlyFee: 0},
		{Name: TierProfessional, Multiplier: 2.0, MonthlyAICredits: 500, DailyCaseLimit: 15, MonthlyAmountLimit: 500000, MonthlyFee: 899},
		{Name: TierEnterprise, Multiplier: 3.0, MonthlyAICredits: 2000, DailyCaseLimit: 0, MonthlyAmountLimit: 0, MonthlyFee: 2999},
	})
}

// NewTierCatalog 按给定顺序建目录，顺序即档位高低
func NewTierCatalog(tiers []Tier) *TierCatalog {
	catalog := &TierCatalog{
		tiers: make(map[TierName]Tier, len(tiers)),
		order: make([]TierName, 0, len(tiers)),
	}
	for _, t := range tiers {
		catalog.tiers[t.Name] = t
		catalog.order = append(catalog.order, t.Name)
	}
	return catalog
}

// Get 查档位，未知档位返回 ErrUnknownTier
func (c *TierCatalog) Get(name TierName) (Tier, error) {
	t, ok := c.tiers[name]
	if !ok {
		return Tier{}, ErrUnknownTier
	}
	return t, nil
}

// BaseTier 目录中的最低档（免费档）
func (c *TierCatalog) BaseTier() Tier {
	return c.tiers[c.order[0]]
}

// Rank 档位序号，越大档位越高；未知档位返回 -1
func (c *TierCatalog) Rank(name TierName) int {
	for i, n := range c.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Membership 账户会员关系
type Membership struct {
	ID        uint      `json:"id"`
	AccountID string    `json:"account_id"`
	Tier      TierName  `json:"tier"`
	StartedAt time.Time `json:"started_at"`
	// 到期时间；免费档为零值，视为不过期
	ExpiresAt time.Time `json:"expires_at"`
	AutoRenew bool      `json:"auto_renew"`
	// 当期剩余 AI 点数
	AICreditsRemaining int64 `json:"ai_credits_remaining"`
	// 上次月度点数发放时间
	CreditsGrantedAt time.Time `json:"credits_granted_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewMembership 新账户默认落在免费档
func NewMembership(accountID string, base Tier, now time.Time) *Membership {
	return &Membership{
		AccountID:          accountID,
		Tier:               base.Name,
		StartedAt:          now,
		AICreditsRemaining: base.MonthlyAICredits,
		CreditsGrantedAt:   now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Expired 判断会员是否已到期（免费档永不过期）
func (m *Membership) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// UpgradeTo 切换到目标付费档并顺延到期时间
func (m *Membership) UpgradeTo(tier Tier, months int, now time.Time) {
	m.Tier = tier.Name
	m.StartedAt = now
	m.ExpiresAt = now.AddDate(0, months, 0)
	m.AICreditsRemaining = tier.MonthlyAICredits
	m.CreditsGrantedAt = now
	m.UpdatedAt = now
}

// Renew 按当前档位续期
func (m *Membership) Renew(months int, now time.Time) {
	base := m.ExpiresAt
	if base.IsZero() || base.Before(now) {
		base = now
	}
	m.ExpiresAt = base.AddDate(0, months, 0)
	m.UpdatedAt = now
}

// DowngradeToBase 回落到免费档（到期或管理操作）
func (m *Membership) DowngradeToBase(base Tier, now time.Time) {
	m.Tier = base.Name
	m.ExpiresAt = time.Time{}
	if m.AICreditsRemaining > base.MonthlyAICredits {
		m.AICreditsRemaining = base.MonthlyAICredits
	}
	m.UpdatedAt = now
}

// ConsumeCredits 扣减 AI 点数，余额不足返回 ErrInsufficientCredit
func (m *Membership) ConsumeCredits(n int64) error {
	if n <= 0 {
		return nil
	}
	if m.AICreditsRemaining < n {
		return ErrInsufficientCredit
	}
	m.AICreditsRemaining -= n
	m.UpdatedAt = time.Now()
	return nil
}

// GrantMonthlyCredits 月度点数发放：距上次发放满一个自然月则重置为档位额度
func (m *Membership) GrantMonthlyCredits(tier Tier, now time.Time) bool {
	if now.Before(m.CreditsGrantedAt.AddDate(0, 1, 0)) {
		return false
	}
	m.AICreditsRemaining = tier.MonthlyAICredits
	m.CreditsGrantedAt = now
	m.UpdatedAt = now
	return true
}
