package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/membership/domain"
)

// ExpirySweepJob 周期扫描到期会员并回落到免费档
type ExpirySweepJob struct {
	service  *MembershipService
	repo     domain.MembershipRepository
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
}

// NewExpirySweepJob 创建到期扫描任务
func NewExpirySweepJob(service *MembershipService, repo domain.MembershipRepository, logger *slog.Logger, interval time.Duration) *ExpirySweepJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweepJob{
		service:  service,
		repo:     repo,
		logger:   logger.With("job", "membership_expiry_sweep"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start 启动任务循环，阻塞直到 ctx 取消或 Stop 被调用
func (j *ExpirySweepJob) Start(ctx context.Context) {
	j.logger.Info("会员到期扫描任务启动", "interval", j.interval.String())
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// Stop 停止任务循环
func (j *ExpirySweepJob) Stop() {
	close(j.stop)
}

func (j *ExpirySweepJob) sweep(ctx context.Context) {
	const batchSize = 200
	now := time.Now()

	for {
		expired, err := j.repo.ListExpired(ctx, now, batchSize)
		if err != nil {
			j.logger.Error("到期会员查询失败", "error", err)
			return
		}
		if len(expired) == 0 {
			return
		}

		for _, m := range expired {
			if err := j.service.DowngradeExpired(ctx, m); err != nil {
				j.logger.Error("到期降级失败", "account_id", m.AccountID, "error", err)
			}
		}
		if len(expired) < batchSize {
			return
		}
	}
}
