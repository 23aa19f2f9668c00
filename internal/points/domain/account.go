package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 律师积分账户聚合根。
// 余额、等级、案件统计等全部派生状态归本引擎独占写入；
// 认证审批通过时由外部协作方创建，之后只标记不删除。
type Account struct {
	ID        uint      `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 等级状态
	Level            int   `json:"level"`
	LevelPoints      int64 `json:"level_points"`
	ExperiencePoints int64 `json:"experience_points"`

	// 案件统计
	CasesCompleted int64           `json:"cases_completed"`
	CasesWon       int64           `json:"cases_won"`
	CasesFailed    int64           `json:"cases_failed"`
	SuccessRate    decimal.Decimal `json:"success_rate"`
	ClientRating   decimal.Decimal `json:"client_rating"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`

	// 风控与状态标记
	ConsecutiveDeclines int  `json:"consecutive_declines"`
	UpgradeEligible     bool `json:"upgrade_eligible"`
	DowngradeRisk       bool `json:"downgrade_risk"`
	Suspended           bool `json:"suspended"`

	// 乐观锁版本号
	Version int64 `json:"version"`
}

// NewAccount 创建初始账户（一级，零分）
func NewAccount(accountID string) *Account {
	now := time.Now()
	return &Account{
		AccountID:    accountID,
		Level:        1,
		SuccessRate:  decimal.Zero,
		ClientRating: decimal.Zero,
		TotalRevenue: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyChange 把一笔积分变动记入账户运行余额
func (a *Account) ApplyChange(pointsChange int64) {
	a.LevelPoints += pointsChange
	if pointsChange > 0 {
		// 经验值只进不退，负向行为不回收经验
		a.ExperiencePoints += pointsChange
	}
	a.UpdatedAt = time.Now()
}

// RecordAction 按行为类型维护案件统计与连续拒单计数
func (a *Account) RecordAction(kind ActionKind, actx ActivityContext) {
	switch kind {
	case ActionCaseCompleted:
		a.CasesCompleted++
		if actx.CaseAmount != nil {
			a.TotalRevenue = a.TotalRevenue.Add(*actx.CaseAmount)
		}
	case ActionCaseWon:
		a.CasesCompleted++
		a.CasesWon++
		if actx.CaseAmount != nil {
			a.TotalRevenue = a.TotalRevenue.Add(*actx.CaseAmount)
		}
	case ActionCaseFailed:
		a.CasesCompleted++
		a.CasesFailed++
	}
	a.refreshSuccessRate()

	if actx.ClientRating != nil {
		a.absorbRating(*actx.ClientRating)
	}

	// 连续负向事件计数：拒单与超时响应累加，任何正向行为清零
	switch kind {
	case ActionCaseDeclined, ActionLateResponse:
		a.ConsecutiveDeclines++
	default:
		a.ConsecutiveDeclines = 0
	}

	a.UpdatedAt = time.Now()
}

func (a *Account) refreshSuccessRate() {
	if a.CasesCompleted == 0 {
		a.SuccessRate = decimal.Zero
		return
	}
	a.SuccessRate = decimal.NewFromInt(a.CasesWon).
		Div(decimal.NewFromInt(a.CasesCompleted)).
		Round(4)
}

// absorbRating 客户评分取移动平均（权重 9:1，新评分占一成）
func (a *Account) absorbRating(rating float64) {
	r := decimal.NewFromFloat(rating)
	if a.ClientRating.IsZero() {
		a.ClientRating = r
		return
	}
	a.ClientRating = a.ClientRating.Mul(decimal.NewFromFloat(0.9)).
		Add(r.Mul(decimal.NewFromFloat(0.1))).
		Round(2)
}

// CheckLevelUp 评估是否满足下一等级门槛。
// 每次调用至多晋升一级，单笔大额奖励跨多级时循环推进；
// 正常积分流转中等级只升不降。
func (a *Account) CheckLevelUp(table *LevelTable) (leveledUp bool, newLevel int) {
	for {
		next, ok := table.Next(a.Level)
		if !ok {
			break
		}
		if a.LevelPoints >= next.LevelPoints && a.CasesCompleted >= next.CasesCompleted {
			a.Level = next.Level
			leveledUp = true
			continue
		}
		break
	}
	if leveledUp {
		a.UpdatedAt = time.Now()
		return true, a.Level
	}
	return false, a.Level
}

// RefreshRiskFlags 重算报告用标记。
// downgrade_risk 只用于展示，任何情况下都不会由此下调等级。
func (a *Account) RefreshRiskFlags(table *LevelTable) {
	current, ok := table.Requirement(a.Level)
	if ok && a.Level > 1 {
		a.DowngradeRisk = a.LevelPoints < current.LevelPoints
	} else {
		a.DowngradeRisk = false
	}

	if next, ok := table.Next(a.Level); ok {
		// 积分已达标、仅差完案数时提示可晋升
		a.UpgradeEligible = a.LevelPoints >= next.LevelPoints
	} else {
		a.UpgradeEligible = false
	}
}

// ApplyDowngrade 显式降级动作（独立授权的管理操作），正常积分流转不会触达
func (a *Account) ApplyDowngrade(toLevel int, table *LevelTable) bool {
	if toLevel < 1 || toLevel >= a.Level {
		return false
	}
	if _, ok := table.Requirement(toLevel); !ok {
		return false
	}
	a.Level = toLevel
	a.UpdatedAt = time.Now()
	return true
}
