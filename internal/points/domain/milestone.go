package domain

import "time"

// MilestoneKey 里程碑键，同一账户每个键至多发放一次
type MilestoneKey string

const (
	MilestoneConsecutiveDays7  MilestoneKey = "consecutive_days_7"
	MilestoneConsecutiveDays30 MilestoneKey = "consecutive_days_30"
	MilestoneTotalDays100      MilestoneKey = "total_days_100"
	MilestoneTotalScore10K     MilestoneKey = "total_score_10000"
	MilestoneBestDay500        MilestoneKey = "best_day_500"
	MilestoneCases100          MilestoneKey = "cases_100"
)

// MilestoneMetric 里程碑考核的指标维度
type MilestoneMetric string

const (
	MetricConsecutiveDays MilestoneMetric = "consecutive_active_days"
	MetricTotalDays       MilestoneMetric = "total_active_days"
	MetricTotalScore      MilestoneMetric = "total_score"
	MetricBestDayScore    MilestoneMetric = "best_day_score"
	MetricCasesCompleted  MilestoneMetric = "cases_completed"
)

// MilestoneSpec 里程碑配置：指标达到阈值时一次性发放固定奖励
type MilestoneSpec struct {
	Key          MilestoneKey    `json:"key"`
	Metric       MilestoneMetric `json:"metric"`
	Threshold    int64           `json:"threshold"`
	RewardPoints int64           `json:"reward_points"`
	Title        string          `json:"title"`
}

// DefaultMilestoneSpecs 默认里程碑配置
func DefaultMilestoneSpecs() []MilestoneSpec {
	return []MilestoneSpec{
		{Key: MilestoneConsecutiveDays7, Metric: MetricConsecutiveDays, Threshold: 7, RewardPoints: 50, Title: "连续活跃 7 天"},
		{Key: MilestoneConsecutiveDays30, Metric: MetricConsecutiveDays, Threshold: 30, RewardPoints: 300, Title: "连续活跃 30 天"},
		{Key: MilestoneTotalDays100, Metric: MetricTotalDays, Threshold: 100, RewardPoints: 500, Title: "累计活跃 100 天"},
		{Key: MilestoneTotalScore10K, Metric: MetricTotalScore, Threshold: 10000, RewardPoints: 1000, Title: "累计积分破万"},
		{Key: MilestoneBestDay500, Metric: MetricBestDayScore, Threshold: 500, RewardPoints: 100, Title: "单日积分 500"},
		{Key: MilestoneCases100, Metric: MetricCasesCompleted, Threshold: 100, RewardPoints: 800, Title: "完成 100 件案件"},
	}
}

// Milestone 已发放的里程碑记录，(account_id, milestone_key) 唯一，写一次不再变更
type Milestone struct {
	ID            uint            `json:"id"`
	AccountID     string          `json:"account_id"`
	Key           MilestoneKey    `json:"key"`
	Metric        MilestoneMetric `json:"metric"`
	Threshold     int64           `json:"threshold"`
	AchievedValue int64           `json:"achieved_value"`
	RewardPoints  int64           `json:"reward_points"`
	AchievedAt    time.Time       `json:"achieved_at"`
}

// MilestoneDetector 里程碑检测器，配置注入、无状态、可并发复用
type MilestoneDetector struct {
	specs []MilestoneSpec
}

// NewMilestoneDetector 创建检测器
func NewMilestoneDetector(specs []MilestoneSpec) *MilestoneDetector {
	copied := make([]MilestoneSpec, len(specs))
	copy(copied, specs)
	return &MilestoneDetector{specs: copied}
}

// Evaluate 返回当前指标下新跨过阈值、且不在已发放集合中的里程碑。
// 真正的"至多一次"由仓储层 insert-if-absent 保证，这里只做候选筛选。
func (d *MilestoneDetector) Evaluate(metrics StreakMetrics, achieved map[MilestoneKey]bool) []MilestoneSpec {
	var crossed []MilestoneSpec
	for _, spec := range d.specs {
		if achieved[spec.Key] {
			continue
		}
		if d.metricValue(spec.Metric, metrics) >= spec.Threshold {
			crossed = append(crossed, spec)
		}
	}
	return crossed
}

func (d *MilestoneDetector) metricValue(metric MilestoneMetric, m StreakMetrics) int64 {
	switch metric {
	case MetricConsecutiveDays:
		return m.ConsecutiveActiveDays
	case MetricTotalDays:
		return m.TotalActiveDays
	case MetricTotalScore:
		return m.TotalScore
	case MetricBestDayScore:
		return m.BestDayScore
	case MetricCasesCompleted:
		return m.CasesCompleted
	default:
		return 0
	}
}

// MetricValue 暴露指标取值（供审计接口展示进度）
func (d *MilestoneDetector) MetricValue(metric MilestoneMetric, m StreakMetrics) int64 {
	return d.metricValue(metric, m)
}

// Specs 返回全部里程碑配置
func (d *MilestoneDetector) Specs() []MilestoneSpec {
	return d.specs
}
