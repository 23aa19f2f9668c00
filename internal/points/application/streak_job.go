package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
)

// StreakSweepJob 定期为全部账户补评里程碑并刷新风险标记。
// 连击类里程碑在自然日翻篇后才满足条件，单靠写路径的即时评估会漏掉
// 当天没有新行为的账户，由本任务兜底。
type StreakSweepJob struct {
	cmd      *PointsCommandService
	accounts domain.AccountRepository
	logger   *slog.Logger
	interval time.Duration
	pageSize int
}

func NewStreakSweepJob(cmd *PointsCommandService, accounts domain.AccountRepository, logger *slog.Logger) *StreakSweepJob {
	return &StreakSweepJob{
		cmd:      cmd,
		accounts: accounts,
		logger:   logger.With("job", "streak_sweep"),
		interval: 1 * time.Hour,
		pageSize: 200,
	}
}

// Start 阻塞运行直到 ctx 取消
func (j *StreakSweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("streak sweep job started", "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *StreakSweepJob) run(ctx context.Context) {
	now := time.Now()
	offset := 0
	for {
		accounts, err := j.accounts.List(ctx, offset, j.pageSize)
		if err != nil {
			j.logger.Error("failed to list accounts", "error", err)
			return
		}
		if len(accounts) == 0 {
			return
		}

		for _, acc := range accounts {
			awarded := j.cmd.evaluateMilestones(ctx, acc, now)
			if len(awarded) > 0 {
				j.logger.Info("milestones awarded by sweep",
					"account_id", acc.AccountID, "milestones", awarded)
			}
		}

		offset += len(accounts)
		if len(accounts) < j.pageSize {
			return
		}
	}
}
