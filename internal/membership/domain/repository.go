package domain

import (
	"context"
	"time"
)

// MembershipRepository 会员关系仓储
type MembershipRepository interface {
	Create(ctx context.Context, membership *Membership) error
	Get(ctx context.Context, accountID string) (*Membership, error)
	Save(ctx context.Context, membership *Membership) error
	// ListExpired 列出 ExpiresAt 早于 before 的非免费档会员
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Membership, error)
}
