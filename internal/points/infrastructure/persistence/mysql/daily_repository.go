package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
)

// dailyRepository 日桶与日上限仓储 MySQL 实现
type dailyRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDailyRepository 创建日活动仓储
func NewDailyRepository(db *gorm.DB, logger *slog.Logger) domain.DailyRepository {
	return &dailyRepository{db: db, logger: logger}
}

// RecordActivity 懒创建并累加日桶。
// 调用方已持有账户行锁，同账户的读改写天然串行。
func (r *dailyRepository) RecordActivity(ctx context.Context, accountID string, date time.Time, kind domain.ActionKind, pointsChange int64, at time.Time) (*domain.DailyActivityBucket, error) {
	handle := contextx.Tx(ctx, r.db).WithContext(ctx)
	day := domain.DayOf(date)

	var model DailyBucketModel
	err := handle.
		Where("account_id = ? AND bucket_date = ?", accountID, day).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = DailyBucketModel{AccountID: accountID, Date: day}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	bucket, err := bucketToDomain(&model)
	if err != nil {
		return nil, err
	}
	bucket.Record(kind, pointsChange, at)

	updated, err := bucketToModel(bucket)
	if err != nil {
		return nil, err
	}
	updated.ID = model.ID
	updated.CreatedAt = model.CreatedAt
	if err := handle.Save(updated).Error; err != nil {
		return nil, err
	}
	bucket.ID = updated.ID
	return bucket, nil
}

// TryIncrementCap 原子递增日上限计数器。
// 先 INSERT IGNORE 确保行存在，再用条件 UPDATE 递增，
// completed < max 不满足时影响行数为 0，即上限已达。
func (r *dailyRepository) TryIncrementCap(ctx context.Context, accountID string, kind domain.ActionKind, date time.Time, maxPerDay int) (bool, error) {
	handle := contextx.Tx(ctx, r.db).WithContext(ctx)
	day := domain.DayOf(date)

	seed := DailyCapModel{
		AccountID: accountID,
		Action:    string(kind),
		Date:      day,
		Completed: 0,
		MaxPerDay: maxPerDay,
	}
	if err := handle.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return false, err
	}

	result := handle.Model(&DailyCapModel{}).
		Where("account_id = ? AND action = ? AND cap_date = ? AND completed < ?",
			accountID, string(kind), day, maxPerDay).
		Update("completed", gorm.Expr("completed + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *dailyRepository) GetBucket(ctx context.Context, accountID string, date time.Time) (*domain.DailyActivityBucket, error) {
	var model DailyBucketModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ? AND bucket_date = ?", accountID, domain.DayOf(date)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return bucketToDomain(&model)
}

func (r *dailyRepository) ListBuckets(ctx context.Context, accountID string, from, to time.Time) ([]*domain.DailyActivityBucket, error) {
	var models []DailyBucketModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ? AND bucket_date >= ? AND bucket_date <= ?",
			accountID, domain.DayOf(from), domain.DayOf(to)).
		Order("bucket_date DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	buckets := make([]*domain.DailyActivityBucket, 0, len(models))
	for i := range models {
		b, err := bucketToDomain(&models[i])
		if err != nil {
			r.logger.Warn("日桶反序列化失败", "account_id", accountID, "date", models[i].Date, "error", err)
			continue
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func (r *dailyRepository) ActiveDates(ctx context.Context, accountID string, limit int) ([]time.Time, error) {
	var dates []time.Time
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&DailyBucketModel{}).
		Where("account_id = ?", accountID).
		Order("bucket_date DESC").
		Limit(limit).
		Pluck("bucket_date", &dates).Error
	if err != nil {
		return nil, err
	}
	return dates, nil
}

func (r *dailyRepository) TotalActiveDays(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&DailyBucketModel{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

func (r *dailyRepository) BestDayScore(ctx context.Context, accountID string) (int64, error) {
	var best struct {
		Score int64
	}
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&DailyBucketModel{}).
		Select("COALESCE(MAX(total_score), 0) AS score").
		Where("account_id = ?", accountID).
		Scan(&best).Error
	if err != nil {
		return 0, err
	}
	return best.Score, nil
}

func bucketToModel(b *domain.DailyActivityBucket) (*DailyBucketModel, error) {
	breakdown, err := json.Marshal(b.Breakdown)
	if err != nil {
		return nil, err
	}
	return &DailyBucketModel{
		AccountID:     b.AccountID,
		Date:          domain.DayOf(b.Date),
		TotalScore:    b.TotalScore,
		ActivityCount: b.ActivityCount,
		BreakdownJSON: string(breakdown),
		FirstActivity: b.FirstActivity,
		LastActivity:  b.LastActivity,
	}, nil
}

func bucketToDomain(m *DailyBucketModel) (*domain.DailyActivityBucket, error) {
	bucket := &domain.DailyActivityBucket{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Date:          m.Date,
		TotalScore:    m.TotalScore,
		ActivityCount: m.ActivityCount,
		FirstActivity: m.FirstActivity,
		LastActivity:  m.LastActivity,
	}
	if m.BreakdownJSON != "" {
		if err := json.Unmarshal([]byte(m.BreakdownJSON), &bucket.Breakdown); err != nil {
			return nil, err
		}
	}
	return bucket, nil
}
