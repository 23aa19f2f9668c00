package mysql

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
)

// MembershipModel 会员关系 GORM 模型
type MembershipModel struct {
	gorm.Model
	AccountID          string    `gorm:"column:account_id;uniqueIndex;type:varchar(64);not null"`
	Tier               string    `gorm:"column:tier;type:varchar(32);not null"`
	StartedAt          time.Time `gorm:"column:started_at"`
	ExpiresAt          *time.Time `gorm:"column:expires_at;index"`
	AutoRenew          bool      `gorm:"column:auto_renew;not null;default:false"`
	AICreditsRemaining int64     `gorm:"column:ai_credits_remaining;not null;default:0"`
	CreditsGrantedAt   time.Time `gorm:"column:credits_granted_at"`
}

// TableName 指定表名
func (MembershipModel) TableName() string { return "memberships" }

// membershipRepository 会员仓储 MySQL 实现
type membershipRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewMembershipRepository 创建会员仓储
func NewMembershipRepository(db *gorm.DB, logger *slog.Logger) domain.MembershipRepository {
	return &membershipRepository{db: db, logger: logger}
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	model := membershipToModel(m)
	if err := contextx.Tx(ctx, r.db).WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	m.ID = model.ID
	return nil
}

func (r *membershipRepository) Get(ctx context.Context, accountID string) (*domain.Membership, error) {
	var model MembershipModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	return membershipToDomain(&model), nil
}

func (r *membershipRepository) Save(ctx context.Context, m *domain.Membership) error {
	return contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&MembershipModel{}).
		Where("account_id = ?", m.AccountID).
		Updates(map[string]any{
			"tier":                 string(m.Tier),
			"started_at":           m.StartedAt,
			"expires_at":           expiresAtColumn(m.ExpiresAt),
			"auto_renew":           m.AutoRenew,
			"ai_credits_remaining": m.AICreditsRemaining,
			"credits_granted_at":   m.CreditsGrantedAt,
		}).Error
}

func (r *membershipRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.Membership, error) {
	var models []MembershipModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("tier <> ? AND expires_at IS NOT NULL AND expires_at < ?",
			string(domain.TierFree), before).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	memberships := make([]*domain.Membership, 0, len(models))
	for i := range models {
		memberships = append(memberships, membershipToDomain(&models[i]))
	}
	return memberships, nil
}

// expiresAtColumn 零值到期时间落 NULL，免费档不设到期
func expiresAtColumn(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func membershipToModel(m *domain.Membership) *MembershipModel {
	return &MembershipModel{
		AccountID:          m.AccountID,
		Tier:               string(m.Tier),
		StartedAt:          m.StartedAt,
		ExpiresAt:          expiresAtColumn(m.ExpiresAt),
		AutoRenew:          m.AutoRenew,
		AICreditsRemaining: m.AICreditsRemaining,
		CreditsGrantedAt:   m.CreditsGrantedAt,
	}
}

func membershipToDomain(model *MembershipModel) *domain.Membership {
	expiresAt := time.Time{}
	if model.ExpiresAt != nil {
		expiresAt = *model.ExpiresAt
	}
	return &domain.Membership{
		ID:                 model.ID,
		AccountID:          model.AccountID,
		Tier:               domain.TierName(model.Tier),
		StartedAt:          model.StartedAt,
		ExpiresAt:          expiresAt,
		AutoRenew:          model.AutoRenew,
		AICreditsRemaining: model.AICreditsRemaining,
		CreditsGrantedAt:   model.CreditsGrantedAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}
