package mysql

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
)

// milestoneRepository 里程碑仓储 MySQL 实现
type milestoneRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewMilestoneRepository 创建里程碑仓储
func NewMilestoneRepository(db *gorm.DB, logger *slog.Logger) domain.MilestoneRepository {
	return &milestoneRepository{db: db, logger: logger}
}

// InsertIfAbsent 幂等写入里程碑。(account_id, milestone_key) 唯一键冲突
// 时不报错，返回 inserted=false，表示该里程碑此前已达成。
func (r *milestoneRepository) InsertIfAbsent(ctx context.Context, milestone *domain.Milestone) (bool, error) {
	model := &MilestoneModel{
		AccountID:     milestone.AccountID,
		MilestoneKey:  string(milestone.Key),
		Metric:        string(milestone.Metric),
		Threshold:     milestone.Threshold,
		AchievedValue: milestone.AchievedValue,
		RewardPoints:  milestone.RewardPoints,
		AchievedAt:    milestone.AchievedAt,
	}
	result := contextx.Tx(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	milestone.ID = model.ID
	return true, nil
}

func (r *milestoneRepository) List(ctx context.Context, accountID string) ([]*domain.Milestone, error) {
	var models []MilestoneModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("achieved_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	milestones := make([]*domain.Milestone, 0, len(models))
	for i := range models {
		milestones = append(milestones, milestoneToDomain(&models[i]))
	}
	return milestones, nil
}

func (r *milestoneRepository) AchievedKeys(ctx context.Context, accountID string) (map[domain.MilestoneKey]bool, error) {
	var keys []string
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&MilestoneModel{}).
		Where("account_id = ?", accountID).
		Pluck("milestone_key", &keys).Error
	if err != nil {
		return nil, err
	}
	achieved := make(map[domain.MilestoneKey]bool, len(keys))
	for _, k := range keys {
		achieved[domain.MilestoneKey(k)] = true
	}
	return achieved, nil
}

func milestoneToDomain(m *MilestoneModel) *domain.Milestone {
	return &domain.Milestone{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Key:           domain.MilestoneKey(m.MilestoneKey),
		Metric:        domain.MilestoneMetric(m.Metric),
		Threshold:     m.Threshold,
		AchievedValue: m.AchievedValue,
		RewardPoints:  m.RewardPoints,
		AchievedAt:    m.AchievedAt,
	}
}
