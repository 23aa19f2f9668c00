package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountStartsAtLevelOne(t *testing.T) {
	acc := NewAccount("lawyer-001")
	assert.Equal(t, 1, acc.Level)
	assert.Zero(t, acc.LevelPoints)
	assert.Zero(t, acc.ExperiencePoints)
}

func TestApplyChangeExperienceOnlyGrows(t *testing.T) {
	acc := NewAccount("lawyer-001")

	acc.ApplyChange(100)
	acc.ApplyChange(-30)
	acc.ApplyChange(50)

	assert.Equal(t, int64(120), acc.LevelPoints)
	assert.Equal(t, int64(150), acc.ExperiencePoints, "负向变动不回收经验")
}

func TestCheckLevelUpRequiresBothThresholds(t *testing.T) {
	table := NewDefaultLevelTable()
	acc := NewAccount("lawyer-001")

	// 积分够二级但完案数不足
	acc.ApplyChange(600)
	leveled, level := acc.CheckLevelUp(table)
	assert.False(t, leveled)
	assert.Equal(t, 1, level)

	// 补足完案数后晋升
	for i := 0; i < 10; i++ {
		acc.RecordAction(ActionCaseCompleted, ActivityContext{})
	}
	leveled, level = acc.CheckLevelUp(table)
	assert.True(t, leveled)
	assert.Equal(t, 3, level, "500 分 / 10 件案件应达到三级")
}

func TestCheckLevelUpAdvancesThroughMultipleLevels(t *testing.T) {
	table := NewDefaultLevelTable()
	acc := NewAccount("lawyer-001")

	acc.ApplyChange(3000)
	acc.CasesCompleted = 60

	leveled, level := acc.CheckLevelUp(table)
	assert.True(t, leveled)
	assert.Equal(t, 5, level)
}

func TestLevelNeverDowngradesFromPoints(t *testing.T) {
	table := NewDefaultLevelTable()
	acc := NewAccount("lawyer-001")
	acc.ApplyChange(600)
	acc.CasesCompleted = 12
	acc.CheckLevelUp(table)
	require.Equal(t, 3, acc.Level)

	// 大额扣分后等级保持
	acc.ApplyChange(-550)
	leveled, level := acc.CheckLevelUp(table)
	assert.False(t, leveled)
	assert.Equal(t, 3, level)

	acc.RefreshRiskFlags(table)
	assert.True(t, acc.DowngradeRisk, "积分跌破当前等级门槛时标记风险")
}

func TestApplyDowngrade(t *testing.T) {
	table := NewDefaultLevelTable()
	acc := NewAccount("lawyer-001")
	acc.Level = 5

	assert.False(t, acc.ApplyDowngrade(5, table), "不允许降到当前等级")
	assert.False(t, acc.ApplyDowngrade(7, table), "不允许向上降级")
	assert.False(t, acc.ApplyDowngrade(0, table))

	assert.True(t, acc.ApplyDowngrade(3, table))
	assert.Equal(t, 3, acc.Level)
}

func TestRecordActionCaseCounters(t *testing.T) {
	acc := NewAccount("lawyer-001")
	amount := decimal.NewFromInt(30000)

	acc.RecordAction(ActionCaseWon, ActivityContext{CaseAmount: &amount})
	acc.RecordAction(ActionCaseCompleted, ActivityContext{CaseAmount: &amount})
	acc.RecordAction(ActionCaseFailed, ActivityContext{})

	assert.Equal(t, int64(3), acc.CasesCompleted)
	assert.Equal(t, int64(1), acc.CasesWon)
	assert.Equal(t, int64(1), acc.CasesFailed)
	assert.True(t, acc.TotalRevenue.Equal(decimal.NewFromInt(60000)))
	assert.True(t, acc.SuccessRate.Equal(decimal.NewFromFloat(0.3333)), "got %s", acc.SuccessRate)
}

func TestRecordActionDeclineStreak(t *testing.T) {
	acc := NewAccount("lawyer-001")

	acc.RecordAction(ActionCaseDeclined, ActivityContext{})
	acc.RecordAction(ActionLateResponse, ActivityContext{})
	acc.RecordAction(ActionCaseDeclined, ActivityContext{})
	assert.Equal(t, 3, acc.ConsecutiveDeclines)

	// 任意正向行为清零
	acc.RecordAction(ActionRespondToCase, ActivityContext{})
	assert.Zero(t, acc.ConsecutiveDeclines)
}

func TestAbuseMonitorThreshold(t *testing.T) {
	monitor := NewAbuseMonitor(5)
	acc := NewAccount("lawyer-001")

	acc.ConsecutiveDeclines = 4
	assert.False(t, monitor.Check(acc))

	acc.ConsecutiveDeclines = 5
	assert.True(t, monitor.Check(acc))

	disabled := NewAbuseMonitor(0)
	assert.False(t, disabled.Check(acc), "阈值未配置时关闭监控")
}

func TestNewLevelTableRejectsBadInput(t *testing.T) {
	_, err := NewLevelTable(nil)
	assert.ErrorIs(t, err, ErrInvalidLevelTable)

	_, err = NewLevelTable([]LevelRequirement{
		{Level: 1, LevelPoints: 0, CasesCompleted: 0},
		{Level: 3, LevelPoints: 100, CasesCompleted: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidLevelTable, "等级序号必须连续")

	_, err = NewLevelTable([]LevelRequirement{
		{Level: 1, LevelPoints: 100, CasesCompleted: 0},
		{Level: 2, LevelPoints: 50, CasesCompleted: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidLevelTable, "阈值必须单调不减")
}
