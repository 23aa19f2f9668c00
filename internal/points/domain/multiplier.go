package domain

import (
	"github.com/shopspring/decimal"
)

// 上下文调整系数，固定顺序逐条相乘，保证同输入同输出
var (
	factorLargeCase   = decimal.NewFromFloat(1.5) // 大额案件（>= 5 万）
	factorMediumCase  = decimal.NewFromFloat(1.2) // 中额案件（>= 1 万）
	factorFastFinish  = decimal.NewFromFloat(1.3) // 24 小时内完成
	factorQuickFinish = decimal.NewFromFloat(1.1) // 72 小时内完成
	factorSlowFinish  = decimal.NewFromFloat(0.8) // 超过 10 天完成
	factorTopRating   = decimal.NewFromFloat(1.2) // 客户评分 >= 4.8
	factorPoorRating  = decimal.NewFromFloat(0.5) // 客户评分 <= 2.0
	factorHighQuality = decimal.NewFromFloat(1.1) // 质量评分 >= 90
	factorFastReply   = decimal.NewFromFloat(1.05) // 10 分钟内响应
	factorNightShift  = decimal.NewFromFloat(1.1) // 夜间时段（22:00-06:00）完成
)

var (
	largeCaseAmount  = decimal.NewFromInt(50000)
	mediumCaseAmount = decimal.NewFromInt(10000)
)

// MultiplierResolver 组合会员档位乘数与上下文调整系数，得到最终有效乘数。
// 调整规则按固定顺序应用，结果夹在 [floor, ceiling] 区间内，不会出现零或负乘数。
type MultiplierResolver struct {
	catalog *RuleCatalog
	floor   decimal.Decimal
	ceiling decimal.Decimal
}

// NewMultiplierResolver 创建乘数解析器；floor 必须为正且不大于 ceiling
func NewMultiplierResolver(catalog *RuleCatalog, floor, ceiling float64) *MultiplierResolver {
	return &MultiplierResolver{
		catalog: catalog,
		floor:   decimal.NewFromFloat(floor),
		ceiling: decimal.NewFromFloat(ceiling),
	}
}

// Resolve 根据行为类型、档位乘数与上下文计算 (基础分, 有效乘数)。
// 未知行为返回 ErrUnknownActionKind，基础分为 0，调用方按零分空操作处理。
func (r *MultiplierResolver) Resolve(kind ActionKind, tierMultiplier decimal.Decimal, actx ActivityContext) (int64, decimal.Decimal, error) {
	base, err := r.catalog.BasePoints(kind)
	if err != nil {
		return 0, decimal.NewFromInt(1), err
	}

	effective := tierMultiplier
	if effective.LessThanOrEqual(decimal.Zero) {
		effective = decimal.NewFromInt(1)
	}

	// 规则应用顺序固定：案件金额 -> 完成速度 -> 客户评分 -> 夜间时段 -> 质量评分 -> 响应延迟
	if actx.CaseAmount != nil {
		switch {
		case actx.CaseAmount.GreaterThanOrEqual(largeCaseAmount):
			effective = effective.Mul(factorLargeCase)
		case actx.CaseAmount.GreaterThanOrEqual(mediumCaseAmount):
			effective = effective.Mul(factorMediumCase)
		}
	}

	if actx.CompletionHours != nil {
		switch {
		case *actx.CompletionHours <= 24:
			effective = effective.Mul(factorFastFinish)
		case *actx.CompletionHours <= 72:
			effective = effective.Mul(factorQuickFinish)
		case *actx.CompletionHours > 240:
			effective = effective.Mul(factorSlowFinish)
		}
	}

	if actx.ClientRating != nil {
		switch {
		case *actx.ClientRating >= 4.8:
			effective = effective.Mul(factorTopRating)
		case *actx.ClientRating <= 2.0:
			effective = effective.Mul(factorPoorRating)
		}
	}

	if !actx.OccurredAt.IsZero() {
		hour := actx.OccurredAt.Hour()
		if hour >= 22 || hour < 6 {
			effective = effective.Mul(factorNightShift)
		}
	}

	if actx.QualityScore != nil && *actx.QualityScore >= 90 {
		effective = effective.Mul(factorHighQuality)
	}

	if actx.ResponseLatencyMinutes != nil && *actx.ResponseLatencyMinutes <= 10 {
		effective = effective.Mul(factorFastReply)
	}

	if effective.LessThan(r.floor) {
		effective = r.floor
	}
	if effective.GreaterThan(r.ceiling) {
		effective = r.ceiling
	}

	return base, effective, nil
}

// ComputePointsChange 计算 round(base × multiplier)，保留符号。
// 仅对严格正分行为兜底最小 1 分，不会把负分行为抬为非负，也不会给零分行为凭空加分。
func ComputePointsChange(base int64, multiplier decimal.Decimal) int64 {
	if base == 0 {
		return 0
	}

	change := decimal.NewFromInt(base).Mul(multiplier).Round(0).IntPart()

	// 最小 1 分兜底只对正分行为生效，负分行为按实际取整（可能为 0，但不会变号）
	if base > 0 && change < 1 {
		return 1
	}
	return change
}
