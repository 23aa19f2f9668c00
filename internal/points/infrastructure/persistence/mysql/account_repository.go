package mysql

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
)

// accountRepository 积分账户仓储 MySQL 实现
type accountRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewAccountRepository 创建积分账户仓储
func NewAccountRepository(db *gorm.DB, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{db: db, logger: logger}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	model := accountToModel(account)
	if err := contextx.Tx(ctx, r.db).WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrWriteConflict
		}
		return err
	}
	account.Version = model.Version
	return nil
}

func (r *accountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var model AccountModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return accountToDomain(&model), nil
}

// GetForUpdate 在事务内加行锁读取账户，必须在 contextx 事务上下文中调用
func (r *accountRepository) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	var model AccountModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return accountToDomain(&model), nil
}

// Save 带乐观锁版本校验写回账户，版本不匹配返回 ErrWriteConflict
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	updates := map[string]any{
		"level":                account.Level,
		"level_points":         account.LevelPoints,
		"experience_points":    account.ExperiencePoints,
		"cases_completed":      account.CasesCompleted,
		"cases_won":            account.CasesWon,
		"cases_failed":         account.CasesFailed,
		"success_rate":         account.SuccessRate,
		"client_rating":        account.ClientRating,
		"total_revenue":        account.TotalRevenue,
		"consecutive_declines": account.ConsecutiveDeclines,
		"upgrade_eligible":     account.UpgradeEligible,
		"downgrade_risk":       account.DowngradeRisk,
		"suspended":            account.Suspended,
		"version":              gorm.Expr("version + 1"),
	}
	result := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&AccountModel{}).
		Where("account_id = ? AND version = ?", account.AccountID, account.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		r.logger.Warn("账户版本冲突", "account_id", account.AccountID, "version", account.Version)
		return domain.ErrWriteConflict
	}
	account.Version++
	return nil
}

func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]*domain.Account, error) {
	var models []AccountModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	accounts := make([]*domain.Account, 0, len(models))
	for i := range models {
		accounts = append(accounts, accountToDomain(&models[i]))
	}
	return accounts, nil
}

func accountToModel(a *domain.Account) *AccountModel {
	return &AccountModel{
		AccountID:           a.AccountID,
		Level:               a.Level,
		LevelPoints:         a.LevelPoints,
		ExperiencePoints:    a.ExperiencePoints,
		CasesCompleted:      a.CasesCompleted,
		CasesWon:            a.CasesWon,
		CasesFailed:         a.CasesFailed,
		SuccessRate:         a.SuccessRate,
		ClientRating:        a.ClientRating,
		TotalRevenue:        a.TotalRevenue,
		ConsecutiveDeclines: a.ConsecutiveDeclines,
		UpgradeEligible:     a.UpgradeEligible,
		DowngradeRisk:       a.DowngradeRisk,
		Suspended:           a.Suspended,
		Version:             a.Version,
	}
}

func accountToDomain(m *AccountModel) *domain.Account {
	return &domain.Account{
		AccountID:           m.AccountID,
		Level:               m.Level,
		LevelPoints:         m.LevelPoints,
		ExperiencePoints:    m.ExperiencePoints,
		CasesCompleted:      m.CasesCompleted,
		CasesWon:            m.CasesWon,
		CasesFailed:         m.CasesFailed,
		SuccessRate:         m.SuccessRate,
		ClientRating:        m.ClientRating,
		TotalRevenue:        m.TotalRevenue,
		ConsecutiveDeclines: m.ConsecutiveDeclines,
		UpgradeEligible:     m.UpgradeEligible,
		DowngradeRisk:       m.DowngradeRisk,
		Suspended:           m.Suspended,
		Version:             m.Version,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
