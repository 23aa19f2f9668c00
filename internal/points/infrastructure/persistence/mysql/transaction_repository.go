package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
)

// transactionRepository 积分流水仓储 MySQL 实现
type transactionRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewTransactionRepository 创建积分流水仓储
func NewTransactionRepository(db *gorm.DB, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{db: db, logger: logger}
}

// Append 追加一条流水。幂等键冲突（同账户重复投递并发竞争）映射为
// ErrWriteConflict，调用方重试后走幂等回放路径。
func (r *transactionRepository) Append(ctx context.Context, txn *domain.PointTransaction) error {
	model, err := transactionToModel(txn)
	if err != nil {
		return err
	}
	if err := contextx.Tx(ctx, r.db).WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrWriteConflict
		}
		return err
	}
	txn.ID = model.ID
	return nil
}

func (r *transactionRepository) FindByIdempotencyKey(ctx context.Context, accountID, key string) (*domain.PointTransaction, error) {
	if key == "" {
		return nil, nil
	}
	var model TransactionModel
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return transactionToDomain(&model)
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID string, offset, limit int) ([]*domain.PointTransaction, int64, error) {
	handle := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&TransactionModel{}).
		Where("account_id = ?", accountID)

	var total int64
	if err := handle.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []TransactionModel
	err := handle.
		Order("occurred_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	txns := make([]*domain.PointTransaction, 0, len(models))
	for i := range models {
		txn, err := transactionToDomain(&models[i])
		if err != nil {
			r.logger.Warn("流水上下文反序列化失败", "transaction_id", models[i].TransactionID, "error", err)
			continue
		}
		txns = append(txns, txn)
	}
	return txns, total, nil
}

func (r *transactionRepository) SumChanges(ctx context.Context, accountID string) (int64, error) {
	var sum struct {
		Total int64
	}
	err := contextx.Tx(ctx, r.db).WithContext(ctx).
		Model(&TransactionModel{}).
		Select("COALESCE(SUM(points_change), 0) AS total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum.Total, nil
}

func transactionToModel(t *domain.PointTransaction) (*TransactionModel, error) {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return nil, err
	}
	model := &TransactionModel{
		TransactionID:     t.TransactionID,
		AccountID:         t.AccountID,
		Action:            string(t.Action),
		BasePoints:        t.BasePoints,
		MultiplierApplied: t.MultiplierApplied,
		PointsChange:      t.PointsChange,
		PointsBefore:      t.PointsBefore,
		PointsAfter:       t.PointsAfter,
		ContextJSON:       string(ctxJSON),
		OccurredAt:        t.OccurredAt,
	}
	if t.IdempotencyKey != "" {
		key := t.IdempotencyKey
		model.IdempotencyKey = &key
	}
	return model, nil
}

func transactionToDomain(m *TransactionModel) (*domain.PointTransaction, error) {
	txn := &domain.PointTransaction{
		ID:                m.ID,
		TransactionID:     m.TransactionID,
		AccountID:         m.AccountID,
		Action:            domain.ActionKind(m.Action),
		BasePoints:        m.BasePoints,
		MultiplierApplied: m.MultiplierApplied,
		PointsChange:      m.PointsChange,
		PointsBefore:      m.PointsBefore,
		PointsAfter:       m.PointsAfter,
		OccurredAt:        m.OccurredAt,
		CreatedAt:         m.CreatedAt,
	}
	if m.IdempotencyKey != nil {
		txn.IdempotencyKey = *m.IdempotencyKey
	}
	if m.ContextJSON != "" {
		if err := json.Unmarshal([]byte(m.ContextJSON), &txn.Context); err != nil {
			return nil, err
		}
	}
	return txn, nil
}
