package domain

import (
	"sort"
	"time"
)

// DayOf 归一化到自然日（本地时区零点），日桶与日上限均按此键聚合
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyActivityBucket 按 (账户, 日期) 聚合的活动桶。
// 当日内只增不减，日期翻篇后成为只读历史。
type DailyActivityBucket struct {
	ID            uint                 `json:"id"`
	AccountID     string               `json:"account_id"`
	Date          time.Time            `json:"date"`
	TotalScore    int64                `json:"total_score"`
	ActivityCount int64                `json:"activity_count"`
	Breakdown     map[ActionKind]int64 `json:"breakdown"`
	FirstActivity time.Time            `json:"first_activity"`
	LastActivity  time.Time            `json:"last_activity"`
}

// Record 把一次行为并入日桶
func (b *DailyActivityBucket) Record(kind ActionKind, pointsChange int64, at time.Time) {
	b.TotalScore += pointsChange
	b.ActivityCount++
	if b.Breakdown == nil {
		b.Breakdown = make(map[ActionKind]int64)
	}
	b.Breakdown[kind]++
	if b.FirstActivity.IsZero() || at.Before(b.FirstActivity) {
		b.FirstActivity = at
	}
	if at.After(b.LastActivity) {
		b.LastActivity = at
	}
}

// DailyTaskCap 按 (账户, 行为, 日期) 的上限计数器。
// Completed <= MaxPerDay 由写入路径原子保证，提交态永不越界。
type DailyTaskCap struct {
	ID        uint       `json:"id"`
	AccountID string     `json:"account_id"`
	Action    ActionKind `json:"action"`
	Date      time.Time  `json:"date"`
	Completed int        `json:"completed"`
	MaxPerDay int        `json:"max_per_day"`
}

// StreakMetrics 里程碑评估所需的累计/连击指标
type StreakMetrics struct {
	ConsecutiveActiveDays int64 `json:"consecutive_active_days"`
	TotalActiveDays       int64 `json:"total_active_days"`
	TotalScore            int64 `json:"total_score"`
	BestDayScore          int64 `json:"best_day_score"`
	CasesCompleted        int64 `json:"cases_completed"`
}

// ConsecutiveActiveDays 由活跃日期集合计算截至 today 的连续活跃天数。
// 同日多次活动不重复计数；缺一天即断，从断点后重新起算；
// 当日尚无活动时从昨日起算（今日未活动不立刻清零昨天结转的连击）。
func ConsecutiveActiveDays(activeDates []time.Time, today time.Time) int64 {
	if len(activeDates) == 0 {
		return 0
	}

	seen := make(map[time.Time]struct{}, len(activeDates))
	for _, d := range activeDates {
		seen[DayOf(d)] = struct{}{}
	}

	day := DayOf(today)
	if _, ok := seen[day]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	var streak int64
	for {
		if _, ok := seen[day]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// BestDayScore 返回活跃日桶中的单日最高分
func BestDayScore(buckets []*DailyActivityBucket) int64 {
	var best int64
	for _, b := range buckets {
		if b.TotalScore > best {
			best = b.TotalScore
		}
	}
	return best
}

// SortBucketsByDate 按日期升序排序（历史查询展示用）
func SortBucketsByDate(buckets []*DailyActivityBucket) {
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
}
