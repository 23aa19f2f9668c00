package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
	"github.com/ronalzhang/lawsker-sub001/pkg/contextx"
	"github.com/ronalzhang/lawsker-sub001/pkg/idgen"
	"github.com/ronalzhang/lawsker-sub001/pkg/metrics"
)

// TxRunner 账本写入的事务边界，*gorm.DB 原生满足
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// EngineOptions 引擎运行参数
type EngineOptions struct {
	// 各行为每日上限；未配置或 <=0 的行为不限次
	DailyCaps map[domain.ActionKind]int
	// 账本写冲突最大重试次数
	MaxWriteRetries int
	// 重试初始退避，按次数指数放大
	RetryBackoff time.Duration
}

// PointsCommandService 积分引擎写侧服务，record_activity 的唯一入口。
// 账本写入是原子边界：流水、账户余额、日桶、上限计数与 outbox 事件同事务提交；
// 落账之后的里程碑评估、排行榜更新等步骤幂等且失败不回滚。
type PointsCommandService struct {
	accounts    domain.AccountRepository
	txns        domain.TransactionRepository
	daily       domain.DailyRepository
	milestones  domain.MilestoneRepository
	leaderboard domain.LeaderboardRepository
	tiers       domain.TierProvider

	catalog  *domain.RuleCatalog
	resolver *domain.MultiplierResolver
	levels   *domain.LevelTable
	detector *domain.MilestoneDetector
	abuse    *domain.AbuseMonitor

	publisher domain.EventPublisher
	db        TxRunner
	idGen     idgen.Generator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      EngineOptions
}

// NewPointsCommandService 组装写侧服务
func NewPointsCommandService(
	accounts domain.AccountRepository,
	txns domain.TransactionRepository,
	daily domain.DailyRepository,
	milestones domain.MilestoneRepository,
	leaderboard domain.LeaderboardRepository,
	tiers domain.TierProvider,
	catalog *domain.RuleCatalog,
	resolver *domain.MultiplierResolver,
	levels *domain.LevelTable,
	detector *domain.MilestoneDetector,
	abuse *domain.AbuseMonitor,
	publisher domain.EventPublisher,
	db TxRunner,
	idGen idgen.Generator,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts EngineOptions,
) *PointsCommandService {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	return &PointsCommandService{
		accounts:    accounts,
		txns:        txns,
		daily:       daily,
		milestones:  milestones,
		leaderboard: leaderboard,
		tiers:       tiers,
		catalog:     catalog,
		resolver:    resolver,
		levels:      levels,
		detector:    detector,
		abuse:       abuse,
		publisher:   publisher,
		db:          db,
		idGen:       idGen,
		metrics:     m,
		logger:      logger.With("service", "points_command"),
		opts:        opts,
	}
}

// CreateAccount 认证审批通过后由外部协作方调用，幂等：已存在直接返回
func (s *PointsCommandService) CreateAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if existing, err := s.accounts.Get(ctx, accountID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account := domain.NewAccount(accountID)
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "points account created", "account_id", accountID)
	return account, nil
}

// RecordActivity 记录一次行为并完成积分全流程。
// 未知行为类型按零分空操作降级；档位查询失败降级为基础 1.0 倍；
// 只有账本写入失败才向调用方返回硬错误。
func (s *PointsCommandService) RecordActivity(ctx context.Context, cmd RecordActivityCommand) (*TransactionResultDTO, error) {
	// 未知行为：配置错误，不重试，零分空操作并记日志供运维关注
	if !s.catalog.Known(cmd.Action) {
		s.logger.WarnContext(ctx, "unknown action kind, recording as zero-point no-op",
			"account_id", cmd.AccountID, "action", cmd.Action)
		return &TransactionResultDTO{
			MultiplierApplied: "1",
			MilestonesAwarded: []string{},
		}, nil
	}

	// 幂等回放：同一幂等键直接返回已落账流水
	if key := cmd.Context.IdempotencyKey; key != "" {
		if prior, err := s.txns.FindByIdempotencyKey(ctx, cmd.AccountID, key); err == nil && prior != nil {
			return s.replayResult(prior), nil
		}
	}

	tierMul, tierInfo := s.lookupTier(ctx, cmd.AccountID)

	base, effective, err := s.resolver.Resolve(cmd.Action, tierMul, cmd.Context)
	if err != nil {
		// Known 已过滤，这里只剩规则表与解析器版本不一致的场景
		s.logger.WarnContext(ctx, "resolver rejected action", "action", cmd.Action, "error", err)
		return &TransactionResultDTO{MultiplierApplied: "1", MilestonesAwarded: []string{}}, nil
	}
	pointsChange := domain.ComputePointsChange(base, effective)

	now := time.Now()
	occurredAt := cmd.Context.EffectiveTime(now)
	day := domain.DayOf(occurredAt)
	capLimit := s.capFor(cmd.Action, tierInfo)

	var (
		txn      *domain.PointTransaction
		account  *domain.Account
		leveled  bool
		newLevel int
		capped   bool
	)

	appendOnce := func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			txCtx := contextx.WithTx(ctx, tx)

			acc, err := s.accounts.GetForUpdate(txCtx, cmd.AccountID)
			if err != nil {
				return err
			}
			// 暂停标记由外部账户状态服务写入，暂停期间拒绝新的积分写入
			if acc.Suspended {
				return domain.ErrAccountSuspended
			}

			// 每日上限检查与递增同语句原子完成，并发下第 N+1 次不可能挤进来
			effectiveChange := pointsChange
			capped = false
			if capLimit > 0 {
				allowed, err := s.daily.TryIncrementCap(txCtx, cmd.AccountID, cmd.Action, day, capLimit)
				if err != nil {
					return err
				}
				if !allowed {
					// 超限：行为仍入流水与日桶供审计，奖励部分归零
					capped = true
					effectiveChange = 0
				}
			}

			pointsBefore := acc.LevelPoints
			acc.ApplyChange(effectiveChange)
			acc.RecordAction(cmd.Action, cmd.Context)
			oldLevel := acc.Level
			leveled, newLevel = acc.CheckLevelUp(s.levels)
			acc.RefreshRiskFlags(s.levels)

			txn = &domain.PointTransaction{
				TransactionID:     fmt.Sprintf("PTX-%d", s.idGen.Generate()),
				AccountID:         cmd.AccountID,
				Action:            cmd.Action,
				BasePoints:        base,
				MultiplierApplied: effective,
				PointsChange:      effectiveChange,
				PointsBefore:      pointsBefore,
				PointsAfter:       pointsBefore + effectiveChange,
				Context:           cmd.Context,
				IdempotencyKey:    cmd.Context.IdempotencyKey,
				OccurredAt:        occurredAt,
			}
			if err := s.txns.Append(txCtx, txn); err != nil {
				return err
			}

			if _, err := s.daily.RecordActivity(txCtx, cmd.AccountID, day, cmd.Action, effectiveChange, occurredAt); err != nil {
				return err
			}

			if err := s.accounts.Save(txCtx, acc); err != nil {
				return err
			}

			if err := s.publisher.PublishInTx(ctx, tx, domain.TopicPointsTransaction, cmd.AccountID, domain.PointsChangedEvent{
				TransactionID: txn.TransactionID,
				AccountID:     cmd.AccountID,
				Action:        cmd.Action,
				PointsChange:  effectiveChange,
				PointsAfter:   txn.PointsAfter,
				OccurredAt:    occurredAt,
			}); err != nil {
				return err
			}

			if leveled {
				if err := s.publisher.PublishInTx(ctx, tx, domain.TopicLevelUp, cmd.AccountID, domain.LeveledUpEvent{
					AccountID: cmd.AccountID,
					OldLevel:  oldLevel,
					NewLevel:  newLevel,
					At:        now,
				}); err != nil {
					return err
				}
			}

			// 反滥用：刚好跨过阈值时发一次暂停信号，继续越界不重复发
			if s.abuse.Check(acc) && acc.ConsecutiveDeclines == s.abuse.Threshold() {
				if err := s.publisher.PublishInTx(ctx, tx, domain.TopicSuspensionSignal, cmd.AccountID, domain.SuspensionSignalEvent{
					AccountID:           cmd.AccountID,
					ConsecutiveDeclines: acc.ConsecutiveDeclines,
					Threshold:           s.abuse.Threshold(),
					At:                  now,
				}); err != nil {
					return err
				}
				if s.metrics != nil {
					s.metrics.SuspensionSignals.Inc()
				}
			}

			account = acc
			return nil
		})
	}

	// 并发重复投递可能在入口查重之后先行落账：唯一键冲突表现为写冲突，
	// 冲突时再查一次幂等键，命中即按回放处理而不是耗尽重试后报错
	var replayed *domain.PointTransaction
	attempt := appendOnce
	if key := cmd.Context.IdempotencyKey; key != "" {
		attempt = func() error {
			err := appendOnce()
			if errors.Is(err, domain.ErrWriteConflict) {
				if prior, lookupErr := s.txns.FindByIdempotencyKey(ctx, cmd.AccountID, key); lookupErr == nil && prior != nil {
					replayed = prior
					return nil
				}
			}
			return err
		}
	}

	if err := s.withWriteRetry(ctx, attempt); err != nil {
		return nil, err
	}
	if replayed != nil {
		return s.replayResult(replayed), nil
	}

	s.observeCommit(cmd.Action, txn.PointsChange, capped, leveled)

	// 落账之后的步骤全部幂等、失败只记日志，不回滚已提交的账本
	awarded := s.evaluateMilestones(ctx, account, now)
	s.updateLeaderboard(ctx, cmd.AccountID, txn.PointsChange)

	result := &TransactionResultDTO{
		TransactionID:     txn.TransactionID,
		PointsEarned:      txn.PointsChange,
		MultiplierApplied: txn.MultiplierApplied.String(),
		PointsBefore:      txn.PointsBefore,
		PointsAfter:       txn.PointsAfter,
		LeveledUp:         leveled,
		MilestonesAwarded: awarded,
		CapExceeded:       capped,
	}
	if leveled {
		result.NewLevel = newLevel
	}
	return result, nil
}

// Downgrade 显式降级（独立授权的管理操作）
func (s *PointsCommandService) Downgrade(ctx context.Context, accountID string, toLevel int) error {
	return s.withWriteRetry(ctx, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			txCtx := contextx.WithTx(ctx, tx)
			acc, err := s.accounts.GetForUpdate(txCtx, accountID)
			if err != nil {
				return err
			}
			if !acc.ApplyDowngrade(toLevel, s.levels) {
				return fmt.Errorf("invalid downgrade: level %d -> %d", acc.Level, toLevel)
			}
			acc.RefreshRiskFlags(s.levels)
			return s.accounts.Save(txCtx, acc)
		})
	})
}

// withWriteRetry 写冲突有限次指数退避重试；重试耗尽向调用方抛出 TransactionFailed 语义
func (s *PointsCommandService) withWriteRetry(ctx context.Context, fn func() error) error {
	backoff := s.opts.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.opts.MaxWriteRetries; attempt++ {
		if attempt > 0 {
			if s.metrics != nil {
				s.metrics.LedgerWriteConflicts.Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrWriteConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", s.opts.MaxWriteRetries, err)
}

// lookupTier 档位查询，失败降级为基础 1.0 倍
func (s *PointsCommandService) lookupTier(ctx context.Context, accountID string) (decimal.Decimal, domain.TierInfo) {
	info, err := s.tiers.TierMultiplier(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "tier lookup failed, falling back to base multiplier",
			"account_id", accountID, "error", err)
		return decimal.NewFromInt(1), domain.TierInfo{TierName: "basic", Multiplier: 1.0}
	}
	return decimal.NewFromFloat(info.Multiplier), info
}

// capFor 行为的每日上限：引擎配置优先，respond_to_case 再叠加档位接案上限
func (s *PointsCommandService) capFor(kind domain.ActionKind, tier domain.TierInfo) int {
	limit := s.opts.DailyCaps[kind]
	if kind == domain.ActionRespondToCase && tier.DailyCaseLimit > 0 {
		if limit <= 0 || tier.DailyCaseLimit < limit {
			limit = tier.DailyCaseLimit
		}
	}
	return limit
}

// evaluateMilestones 评估并发放新跨过的里程碑。
// insert-if-absent 保证同键并发评估只有一次生效；重复发放尝试视同成功。
func (s *PointsCommandService) evaluateMilestones(ctx context.Context, account *domain.Account, now time.Time) []string {
	awarded := []string{}
	if account == nil {
		return awarded
	}

	metricsSnapshot, err := s.collectStreakMetrics(ctx, account, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "milestone metrics collection failed",
			"account_id", account.AccountID, "error", err)
		return awarded
	}

	achieved, err := s.milestones.AchievedKeys(ctx, account.AccountID)
	if err != nil {
		s.logger.ErrorContext(ctx, "milestone lookup failed",
			"account_id", account.AccountID, "error", err)
		return awarded
	}

	for _, spec := range s.detector.Evaluate(metricsSnapshot, achieved) {
		inserted, err := s.milestones.InsertIfAbsent(ctx, &domain.Milestone{
			AccountID:     account.AccountID,
			Key:           spec.Key,
			Metric:        spec.Metric,
			Threshold:     spec.Threshold,
			AchievedValue: s.detector.MetricValue(spec.Metric, metricsSnapshot),
			RewardPoints:  spec.RewardPoints,
			AchievedAt:    now,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "milestone insert failed",
				"account_id", account.AccountID, "milestone", spec.Key, "error", err)
			continue
		}
		if !inserted {
			// 并发评估者抢先落库，静默成功
			continue
		}

		if err := s.awardMilestoneBonus(ctx, account.AccountID, spec, now); err != nil {
			s.logger.ErrorContext(ctx, "milestone bonus award failed",
				"account_id", account.AccountID, "milestone", spec.Key, "error", err)
		}
		awarded = append(awarded, string(spec.Key))
		if s.metrics != nil {
			s.metrics.MilestonesAwarded.WithLabelValues(string(spec.Key)).Inc()
		}
	}
	return awarded
}

// awardMilestoneBonus 里程碑奖励单独入账：固定分值、乘数 1.0，不走规则表
func (s *PointsCommandService) awardMilestoneBonus(ctx context.Context, accountID string, spec domain.MilestoneSpec, now time.Time) error {
	return s.withWriteRetry(ctx, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			txCtx := contextx.WithTx(ctx, tx)

			acc, err := s.accounts.GetForUpdate(txCtx, accountID)
			if err != nil {
				return err
			}

			pointsBefore := acc.LevelPoints
			acc.ApplyChange(spec.RewardPoints)
			oldLevel := acc.Level
			leveled, newLevel := acc.CheckLevelUp(s.levels)
			acc.RefreshRiskFlags(s.levels)

			txn := &domain.PointTransaction{
				TransactionID:     fmt.Sprintf("PTX-%d", s.idGen.Generate()),
				AccountID:         accountID,
				Action:            domain.ActionMilestoneBonus,
				BasePoints:        spec.RewardPoints,
				MultiplierApplied: decimal.NewFromInt(1),
				PointsChange:      spec.RewardPoints,
				PointsBefore:      pointsBefore,
				PointsAfter:       pointsBefore + spec.RewardPoints,
				Context: domain.ActivityContext{
					OccurredAt: now,
					Extra:      map[string]string{"milestone": string(spec.Key)},
				},
				IdempotencyKey: fmt.Sprintf("milestone:%s:%s", accountID, spec.Key),
				OccurredAt:     now,
			}
			if err := s.txns.Append(txCtx, txn); err != nil {
				return err
			}

			if _, err := s.daily.RecordActivity(txCtx, accountID, domain.DayOf(now), domain.ActionMilestoneBonus, spec.RewardPoints, now); err != nil {
				return err
			}

			if err := s.accounts.Save(txCtx, acc); err != nil {
				return err
			}

			if err := s.publisher.PublishInTx(ctx, tx, domain.TopicMilestoneAwarded, accountID, domain.MilestoneAwardedEvent{
				AccountID:    accountID,
				Key:          spec.Key,
				RewardPoints: spec.RewardPoints,
				At:           now,
			}); err != nil {
				return err
			}

			if leveled {
				if err := s.publisher.PublishInTx(ctx, tx, domain.TopicLevelUp, accountID, domain.LeveledUpEvent{
					AccountID: accountID,
					OldLevel:  oldLevel,
					NewLevel:  newLevel,
					At:        now,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// collectStreakMetrics 汇集里程碑评估指标
func (s *PointsCommandService) collectStreakMetrics(ctx context.Context, account *domain.Account, now time.Time) (domain.StreakMetrics, error) {
	// 连击窗口取最近 60 个活跃日，足够覆盖最长的 30 天连击里程碑
	activeDates, err := s.daily.ActiveDates(ctx, account.AccountID, 60)
	if err != nil {
		return domain.StreakMetrics{}, err
	}
	totalDays, err := s.daily.TotalActiveDays(ctx, account.AccountID)
	if err != nil {
		return domain.StreakMetrics{}, err
	}
	bestDay, err := s.daily.BestDayScore(ctx, account.AccountID)
	if err != nil {
		return domain.StreakMetrics{}, err
	}

	return domain.StreakMetrics{
		ConsecutiveActiveDays: domain.ConsecutiveActiveDays(activeDates, now),
		TotalActiveDays:       totalDays,
		TotalScore:            account.ExperiencePoints,
		BestDayScore:          bestDay,
		CasesCompleted:        account.CasesCompleted,
	}, nil
}

func (s *PointsCommandService) updateLeaderboard(ctx context.Context, accountID string, delta int64) {
	if s.leaderboard == nil || delta == 0 {
		return
	}
	if err := s.leaderboard.AddScore(ctx, accountID, delta); err != nil {
		s.logger.WarnContext(ctx, "leaderboard update failed", "account_id", accountID, "error", err)
	}
}

func (s *PointsCommandService) observeCommit(action domain.ActionKind, change int64, capped, leveled bool) {
	if s.metrics == nil {
		return
	}
	cappedLabel := "no"
	if capped {
		cappedLabel = "yes"
		s.metrics.DailyCapRejections.WithLabelValues(string(action)).Inc()
	}
	s.metrics.PointTransactionsTotal.WithLabelValues(string(action), cappedLabel).Inc()
	if change > 0 {
		s.metrics.PointsAwardedTotal.WithLabelValues(string(action), "credit").Add(float64(change))
	} else if change < 0 {
		s.metrics.PointsAwardedTotal.WithLabelValues(string(action), "debit").Add(float64(-change))
	}
	if leveled {
		s.metrics.LevelUpsTotal.Inc()
	}
}

// replayResult 幂等键命中时由已落账流水重建结果。
// 升级与里程碑是首次投递时一次性上报的事实，回放不再重复；
// cap_exceeded 可由流水复原：落账变更为零而规则计算不为零，说明当时奖励被上限归零。
func (s *PointsCommandService) replayResult(txn *domain.PointTransaction) *TransactionResultDTO {
	capped := txn.PointsChange == 0 && domain.ComputePointsChange(txn.BasePoints, txn.MultiplierApplied) != 0
	return &TransactionResultDTO{
		TransactionID:     txn.TransactionID,
		PointsEarned:      txn.PointsChange,
		MultiplierApplied: txn.MultiplierApplied.String(),
		PointsBefore:      txn.PointsBefore,
		PointsAfter:       txn.PointsAfter,
		MilestonesAwarded: []string{},
		CapExceeded:       capped,
	}
}
