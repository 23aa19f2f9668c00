package domain

import "errors"

var (
	// ErrUnknownActionKind 规则表未配置的行为类型（配置错误，不重试，按零分空操作处理）
	ErrUnknownActionKind = errors.New("unknown action kind")
	// ErrWriteConflict 账本写冲突（乐观锁失败，调用方有限重试）
	ErrWriteConflict = errors.New("ledger write conflict")
	// ErrAccountNotFound 积分账户不存在
	ErrAccountNotFound = errors.New("points account not found")
	// ErrAccountSuspended 账户已被暂停，拒绝新的积分写入
	ErrAccountSuspended = errors.New("points account suspended")
	// ErrInvalidLevelTable 等级表配置非法（阈值非单调）
	ErrInvalidLevelTable = errors.New("invalid level table")
)
