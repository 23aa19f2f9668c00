package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		t.Fatalf("bad date %q: %v", value, err)
	}
	return parsed
}

func TestDayOfNormalizesToMidnight(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 59, 58, 0, time.Local)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local), DayOf(at))
}

func TestBucketRecord(t *testing.T) {
	bucket := &DailyActivityBucket{AccountID: "lawyer-001", Date: day(t, "2026-03-14")}

	first := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	second := time.Date(2026, 3, 14, 18, 30, 0, 0, time.Local)

	bucket.Record(ActionCaseCompleted, 100, second)
	bucket.Record(ActionDailyLogin, 5, first)
	bucket.Record(ActionCaseCompleted, 150, second)

	assert.Equal(t, int64(255), bucket.TotalScore)
	assert.Equal(t, int64(3), bucket.ActivityCount)
	assert.Equal(t, int64(2), bucket.Breakdown[ActionCaseCompleted])
	assert.Equal(t, int64(1), bucket.Breakdown[ActionDailyLogin])
	assert.Equal(t, first, bucket.FirstActivity)
	assert.Equal(t, second, bucket.LastActivity)
}

func TestConsecutiveActiveDays(t *testing.T) {
	today := day(t, "2026-03-14")

	tests := []struct {
		name  string
		dates []string
		want  int64
	}{
		{"no activity", nil, 0},
		{"only today", []string{"2026-03-14"}, 1},
		{"unbroken run", []string{"2026-03-14", "2026-03-13", "2026-03-12"}, 3},
		{"gap resets", []string{"2026-03-14", "2026-03-13", "2026-03-11", "2026-03-10"}, 2},
		{"today missing counts from yesterday", []string{"2026-03-13", "2026-03-12"}, 2},
		{"stale history", []string{"2026-03-01", "2026-02-28"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := make([]time.Time, 0, len(tt.dates))
			for _, d := range tt.dates {
				dates = append(dates, day(t, d))
			}
			assert.Equal(t, tt.want, ConsecutiveActiveDays(dates, today))
		})
	}
}

func TestConsecutiveActiveDaysSameDayRepeatsCollapse(t *testing.T) {
	today := day(t, "2026-03-14")
	dates := []time.Time{
		time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local),
		time.Date(2026, 3, 14, 21, 0, 0, 0, time.Local),
		time.Date(2026, 3, 13, 12, 0, 0, 0, time.Local),
	}
	assert.Equal(t, int64(2), ConsecutiveActiveDays(dates, today))
}

func TestBestDayScore(t *testing.T) {
	buckets := []*DailyActivityBucket{
		{Date: day(t, "2026-03-12"), TotalScore: 120},
		{Date: day(t, "2026-03-13"), TotalScore: 540},
		{Date: day(t, "2026-03-14"), TotalScore: 75},
	}
	assert.Equal(t, int64(540), BestDayScore(buckets))
	assert.Zero(t, BestDayScore(nil))
}

func TestMilestoneDetectorEvaluate(t *testing.T) {
	detector := NewMilestoneDetector(DefaultMilestoneSpecs())

	metrics := StreakMetrics{
		ConsecutiveActiveDays: 7,
		TotalActiveDays:       10,
		TotalScore:            600,
		BestDayScore:          520,
		CasesCompleted:        12,
	}

	crossed := detector.Evaluate(metrics, map[MilestoneKey]bool{})
	keys := make([]MilestoneKey, 0, len(crossed))
	for _, spec := range crossed {
		keys = append(keys, spec.Key)
	}
	assert.ElementsMatch(t, []MilestoneKey{MilestoneConsecutiveDays7, MilestoneBestDay500}, keys)
}

func TestMilestoneDetectorSkipsAchieved(t *testing.T) {
	detector := NewMilestoneDetector(DefaultMilestoneSpecs())

	metrics := StreakMetrics{ConsecutiveActiveDays: 7, BestDayScore: 520}
	achieved := map[MilestoneKey]bool{
		MilestoneConsecutiveDays7: true,
		MilestoneBestDay500:       true,
	}
	assert.Empty(t, detector.Evaluate(metrics, achieved), "已发放的里程碑不再进候选")
}
