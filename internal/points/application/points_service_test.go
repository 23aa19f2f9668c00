package application

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ronalzhang/lawsker-sub001/internal/points/domain"
)

// fakeTxRunner 直接执行事务函数，仓储假件自身保证一致性
type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	return fc(nil)
}

// fakeAccounts 带乐观锁语义的内存账户仓储。
// GetForUpdate 持有账户级互斥锁直到 Save，模拟行锁；
// failSaves 用于注入前 N 次写冲突。
type fakeAccounts struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	locks     map[string]*sync.Mutex
	failSaves int32
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		accounts: make(map[string]*domain.Account),
		locks:    make(map[string]*sync.Mutex),
	}
}

func cloneAccount(a *domain.Account) *domain.Account {
	copied := *a
	return &copied
}

func (f *fakeAccounts) rowLock(accountID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[accountID] = lock
	}
	return lock
}

func (f *fakeAccounts) Create(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accounts[account.AccountID]; exists {
		return domain.ErrWriteConflict
	}
	f.accounts[account.AccountID] = cloneAccount(account)
	return nil
}

func (f *fakeAccounts) Get(_ context.Context, accountID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(acc), nil
}

func (f *fakeAccounts) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	f.rowLock(accountID).Lock()
	acc, err := f.Get(ctx, accountID)
	if err != nil {
		f.rowLock(accountID).Unlock()
		return nil, err
	}
	return acc, nil
}

func (f *fakeAccounts) Save(_ context.Context, account *domain.Account) error {
	defer f.rowLock(account.AccountID).Unlock()

	if atomic.AddInt32(&f.failSaves, -1) >= 0 {
		return domain.ErrWriteConflict
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.accounts[account.AccountID]
	if !ok || stored.Version != account.Version {
		return domain.ErrWriteConflict
	}
	account.Version++
	f.accounts[account.AccountID] = cloneAccount(account)
	return nil
}

func (f *fakeAccounts) List(_ context.Context, offset, limit int) ([]*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.accounts))
	for id := range f.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*domain.Account
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, cloneAccount(f.accounts[ids[i]]))
	}
	return out, nil
}

// fakeTxns 只追加内存流水，(账户, 幂等键) 唯一
type fakeTxns struct {
	mu      sync.Mutex
	entries []*domain.PointTransaction
	// 查重未命中后触发一次，模拟重复投递在查重与落账之间抢先入库
	onLookupMiss func()
}

func (f *fakeTxns) Append(_ context.Context, txn *domain.PointTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if txn.IdempotencyKey != "" {
		for _, e := range f.entries {
			if e.AccountID == txn.AccountID && e.IdempotencyKey == txn.IdempotencyKey {
				return domain.ErrWriteConflict
			}
		}
	}
	copied := *txn
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeTxns) FindByIdempotencyKey(_ context.Context, accountID, key string) (*domain.PointTransaction, error) {
	f.mu.Lock()
	for _, e := range f.entries {
		if e.AccountID == accountID && e.IdempotencyKey == key {
			copied := *e
			f.mu.Unlock()
			return &copied, nil
		}
	}
	hook := f.onLookupMiss
	f.onLookupMiss = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil, nil
}

func (f *fakeTxns) ListByAccount(_ context.Context, accountID string, offset, limit int) ([]*domain.PointTransaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.PointTransaction
	for _, e := range f.entries {
		if e.AccountID == accountID {
			copied := *e
			matched = append(matched, &copied)
		}
	}
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (f *fakeTxns) SumChanges(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.AccountID == accountID {
			sum += e.PointsChange
		}
	}
	return sum, nil
}

func (f *fakeTxns) byAction(accountID string, kind domain.ActionKind) []*domain.PointTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.PointTransaction
	for _, e := range f.entries {
		if e.AccountID == accountID && e.Action == kind {
			matched = append(matched, e)
		}
	}
	return matched
}

// fakeDaily 内存日桶与上限计数器
type fakeDaily struct {
	mu      sync.Mutex
	buckets map[string]map[time.Time]*domain.DailyActivityBucket
	caps    map[string]int
}

func newFakeDaily() *fakeDaily {
	return &fakeDaily{
		buckets: make(map[string]map[time.Time]*domain.DailyActivityBucket),
		caps:    make(map[string]int),
	}
}

func (f *fakeDaily) capKey(accountID string, kind domain.ActionKind, date time.Time) string {
	return accountID + "|" + string(kind) + "|" + domain.DayOf(date).Format("2006-01-02")
}

func (f *fakeDaily) seedBucket(accountID string, date time.Time, score int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := domain.DayOf(date)
	if f.buckets[accountID] == nil {
		f.buckets[accountID] = make(map[time.Time]*domain.DailyActivityBucket)
	}
	f.buckets[accountID][day] = &domain.DailyActivityBucket{
		AccountID: accountID, Date: day, TotalScore: score, ActivityCount: 1,
	}
}

func (f *fakeDaily) RecordActivity(_ context.Context, accountID string, date time.Time, kind domain.ActionKind, pointsChange int64, at time.Time) (*domain.DailyActivityBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := domain.DayOf(date)
	if f.buckets[accountID] == nil {
		f.buckets[accountID] = make(map[time.Time]*domain.DailyActivityBucket)
	}
	bucket, ok := f.buckets[accountID][day]
	if !ok {
		bucket = &domain.DailyActivityBucket{AccountID: accountID, Date: day}
		f.buckets[accountID][day] = bucket
	}
	bucket.Record(kind, pointsChange, at)
	copied := *bucket
	return &copied, nil
}

func (f *fakeDaily) TryIncrementCap(_ context.Context, accountID string, kind domain.ActionKind, date time.Time, maxPerDay int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.capKey(accountID, kind, date)
	if f.caps[key] >= maxPerDay {
		return false, nil
	}
	f.caps[key]++
	return true, nil
}

func (f *fakeDaily) GetBucket(_ context.Context, accountID string, date time.Time) (*domain.DailyActivityBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.buckets[accountID][domain.DayOf(date)]
	if !ok {
		return nil, nil
	}
	copied := *bucket
	return &copied, nil
}

func (f *fakeDaily) ListBuckets(_ context.Context, accountID string, from, to time.Time) ([]*domain.DailyActivityBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.DailyActivityBucket
	for day, bucket := range f.buckets[accountID] {
		if !day.Before(domain.DayOf(from)) && !day.After(domain.DayOf(to)) {
			copied := *bucket
			out = append(out, &copied)
		}
	}
	domain.SortBucketsByDate(out)
	return out, nil
}

func (f *fakeDaily) ActiveDates(_ context.Context, accountID string, limit int) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dates []time.Time
	for day := range f.buckets[accountID] {
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

func (f *fakeDaily) TotalActiveDays(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.buckets[accountID])), nil
}

func (f *fakeDaily) BestDayScore(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best int64
	for _, bucket := range f.buckets[accountID] {
		if bucket.TotalScore > best {
			best = bucket.TotalScore
		}
	}
	return best, nil
}

// fakeMilestones insert-if-absent 内存里程碑仓储
type fakeMilestones struct {
	mu      sync.Mutex
	records map[string]map[domain.MilestoneKey]*domain.Milestone
}

func newFakeMilestones() *fakeMilestones {
	return &fakeMilestones{records: make(map[string]map[domain.MilestoneKey]*domain.Milestone)}
}

func (f *fakeMilestones) InsertIfAbsent(_ context.Context, milestone *domain.Milestone) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[milestone.AccountID] == nil {
		f.records[milestone.AccountID] = make(map[domain.MilestoneKey]*domain.Milestone)
	}
	if _, exists := f.records[milestone.AccountID][milestone.Key]; exists {
		return false, nil
	}
	copied := *milestone
	f.records[milestone.AccountID][milestone.Key] = &copied
	return true, nil
}

func (f *fakeMilestones) List(_ context.Context, accountID string) ([]*domain.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Milestone
	for _, m := range f.records[accountID] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeMilestones) AchievedKeys(_ context.Context, accountID string) (map[domain.MilestoneKey]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	achieved := make(map[domain.MilestoneKey]bool)
	for key := range f.records[accountID] {
		achieved[key] = true
	}
	return achieved, nil
}

// fakeLeaderboard 内存排行榜
type fakeLeaderboard struct {
	mu     sync.Mutex
	scores map[string]int64
}

func newFakeLeaderboard() *fakeLeaderboard {
	return &fakeLeaderboard{scores: make(map[string]int64)}
}

func (f *fakeLeaderboard) AddScore(_ context.Context, accountID string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[accountID] += delta
	return nil
}

func (f *fakeLeaderboard) Top(_ context.Context, n int64) ([]domain.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(f.scores))
	for id, score := range f.scores {
		entries = append(entries, domain.LeaderboardEntry{AccountID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if int64(len(entries)) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = int64(i) + 1
	}
	return entries, nil
}

func (f *fakeLeaderboard) Rank(_ context.Context, accountID string) (int64, error) {
	top, _ := f.Top(context.Background(), int64(1<<30))
	for _, e := range top {
		if e.AccountID == accountID {
			return e.Rank - 1, nil
		}
	}
	return -1, nil
}

// fakeTiers 固定档位应答
type fakeTiers struct {
	info domain.TierInfo
	err  error
}

func (f *fakeTiers) TierMultiplier(context.Context, string) (domain.TierInfo, error) {
	if f.err != nil {
		return domain.TierInfo{}, f.err
	}
	return f.info, nil
}

// fakePublisher 记录已发布事件
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	topic   string
	payload any
}

func (f *fakePublisher) PublishInTx(_ context.Context, _ *gorm.DB, topic, _ string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) countTopic(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, e := range f.events {
		if e.topic == topic {
			n++
		}
	}
	return n
}

// fakeIDGen 单调递增 ID
type fakeIDGen struct{ next uint64 }

func (f *fakeIDGen) Generate() uint64 {
	return atomic.AddUint64(&f.next, 1)
}

type testEnv struct {
	accounts    *fakeAccounts
	txns        *fakeTxns
	daily       *fakeDaily
	milestones  *fakeMilestones
	leaderboard *fakeLeaderboard
	tiers       *fakeTiers
	publisher   *fakePublisher
	svc         *PointsCommandService
	query       *PointsQueryService
}

func newTestEnv(t *testing.T, opts EngineOptions) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts:    newFakeAccounts(),
		txns:        &fakeTxns{},
		daily:       newFakeDaily(),
		milestones:  newFakeMilestones(),
		leaderboard: newFakeLeaderboard(),
		tiers:       &fakeTiers{info: domain.TierInfo{TierName: "free", Multiplier: 1.0}},
		publisher:   &fakePublisher{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := domain.NewDefaultRuleCatalog()
	levels := domain.NewDefaultLevelTable()
	detector := domain.NewMilestoneDetector(domain.DefaultMilestoneSpecs())

	env.svc = NewPointsCommandService(
		env.accounts, env.txns, env.daily, env.milestones, env.leaderboard,
		env.tiers, catalog,
		domain.NewMultiplierResolver(catalog, 0.5, 5.0),
		levels, detector, domain.NewAbuseMonitor(5),
		env.publisher, fakeTxRunner{}, &fakeIDGen{}, nil, logger, opts,
	)
	env.query = NewPointsQueryService(
		env.accounts, env.txns, env.daily, env.milestones, env.leaderboard,
		detector, levels, logger,
	)
	return env
}

func (e *testEnv) mustCreateAccount(t *testing.T, accountID string) {
	t.Helper()
	_, err := e.svc.CreateAccount(context.Background(), accountID)
	require.NoError(t, err)
}

func TestCreateAccountIdempotent(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	ctx := context.Background()

	first, err := env.svc.CreateAccount(ctx, "lawyer-001")
	require.NoError(t, err)
	second, err := env.svc.CreateAccount(ctx, "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, first.AccountID, second.AccountID)
	assert.Equal(t, 1, second.Level)
}

func TestRecordActivityBaseTier(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")

	result, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.PointsEarned)
	assert.Equal(t, "1", result.MultiplierApplied)
	assert.Equal(t, int64(0), result.PointsBefore)
	assert.Equal(t, int64(100), result.PointsAfter)
	assert.False(t, result.CapExceeded)

	acc, err := env.accounts.Get(context.Background(), "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.LevelPoints)
	assert.Equal(t, int64(1), acc.CasesCompleted)
	assert.Equal(t, 1, env.publisher.countTopic(domain.TopicPointsTransaction))
}

func TestRecordActivityPremiumLargeCase(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.tiers.info = domain.TierInfo{TierName: "professional", Multiplier: 2.0}
	env.mustCreateAccount(t, "lawyer-001")

	amount := decimal.NewFromInt(60000)
	result, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
		Context:   domain.ActivityContext{CaseAmount: &amount},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(300), result.PointsEarned, "100 × 2.0 × 1.5")
	assert.Equal(t, "3", result.MultiplierApplied)
}

func TestRecordActivityUnknownActionIsNoOp(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")

	result, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionKind("definitely_not_configured"),
	})
	require.NoError(t, err, "配置错误不向上游抛错")
	assert.Zero(t, result.PointsEarned)
	assert.Empty(t, result.TransactionID)

	sum, err := env.txns.SumChanges(context.Background(), "lawyer-001")
	require.NoError(t, err)
	assert.Zero(t, sum, "不落流水")
}

func TestRecordActivityIdempotentReplay(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")

	cmd := RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseWon,
		Context:   domain.ActivityContext{IdempotencyKey: "delivery-42"},
	}

	first, err := env.svc.RecordActivity(context.Background(), cmd)
	require.NoError(t, err)
	second, err := env.svc.RecordActivity(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.PointsAfter, second.PointsAfter)

	acc, err := env.accounts.Get(context.Background(), "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, int64(150), acc.LevelPoints, "重复投递只入账一次")
	_, total, err := env.txns.ListByAccount(context.Background(), "lawyer-001", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRecordActivityRejectsSuspendedAccount(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	env.accounts.mu.Lock()
	env.accounts.accounts["lawyer-001"].Suspended = true
	env.accounts.mu.Unlock()

	_, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
	})
	require.ErrorIs(t, err, domain.ErrAccountSuspended)

	_, total, err := env.txns.ListByAccount(context.Background(), "lawyer-001", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "暂停账户不产生任何流水")
}

func TestRecordActivityReplaysWhenDuplicateRacesPastLookup(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	// 入口查重未命中后重复投递先行落账，本次 Append 撞唯一键，
	// 期望冲突后二次查重命中并按回放返回，而不是耗尽重试报错
	env.txns.onLookupMiss = func() {
		prior := &domain.PointTransaction{
			TransactionID:     "PTX-900",
			AccountID:         "lawyer-001",
			Action:            domain.ActionCaseWon,
			BasePoints:        150,
			MultiplierApplied: decimal.NewFromInt(1),
			PointsChange:      150,
			PointsAfter:       150,
			IdempotencyKey:    "delivery-42",
		}
		require.NoError(t, env.txns.Append(ctx, prior))
	}

	result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseWon,
		Context:   domain.ActivityContext{IdempotencyKey: "delivery-42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "PTX-900", result.TransactionID)
	assert.Equal(t, int64(150), result.PointsEarned)

	_, total, err := env.txns.ListByAccount(ctx, "lawyer-001", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "冲突回放不追加第二笔流水")
}

func TestReplayResultRestoresCapExceeded(t *testing.T) {
	env := newTestEnv(t, EngineOptions{})

	// 落账变更为零、规则计算不为零：当时被上限归零
	capped := &domain.PointTransaction{
		TransactionID: "PTX-7", BasePoints: 15,
		MultiplierApplied: decimal.NewFromInt(1), PointsChange: 0,
	}
	assert.True(t, env.svc.replayResult(capped).CapExceeded)

	// 负分行为经乘数取整为零不属于超限
	roundedToZero := &domain.PointTransaction{
		TransactionID: "PTX-8", BasePoints: -1,
		MultiplierApplied: decimal.NewFromFloat(0.4), PointsChange: 0,
	}
	assert.False(t, env.svc.replayResult(roundedToZero).CapExceeded)
}

func TestRecordActivityDailyCap(t *testing.T) {
	env := newTestEnv(t, EngineOptions{
		MaxWriteRetries: 3,
		DailyCaps:       map[domain.ActionKind]int{domain.ActionRespondToCase: 5},
	})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
			AccountID: "lawyer-001",
			Action:    domain.ActionRespondToCase,
		})
		require.NoError(t, err)
		assert.False(t, result.CapExceeded)
		assert.Equal(t, int64(15), result.PointsEarned)
	}

	// 第 6 次：超限，零分但仍入流水供审计
	result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionRespondToCase,
	})
	require.NoError(t, err)
	assert.True(t, result.CapExceeded)
	assert.Zero(t, result.PointsEarned)

	acc, err := env.accounts.Get(ctx, "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, int64(75), acc.LevelPoints)
	_, total, err := env.txns.ListByAccount(ctx, "lawyer-001", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total, "超限行为也保留审计流水")
}

func TestRecordActivityTierDailyCaseLimit(t *testing.T) {
	env := newTestEnv(t, EngineOptions{
		MaxWriteRetries: 3,
		DailyCaps:       map[domain.ActionKind]int{domain.ActionRespondToCase: 20},
	})
	env.tiers.info = domain.TierInfo{TierName: "free", Multiplier: 1.0, DailyCaseLimit: 2}
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
			AccountID: "lawyer-001", Action: domain.ActionRespondToCase,
		})
		require.NoError(t, err)
		assert.False(t, result.CapExceeded)
	}
	result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001", Action: domain.ActionRespondToCase,
	})
	require.NoError(t, err)
	assert.True(t, result.CapExceeded, "档位接案上限收紧引擎配置")
}

func TestRecordActivityTierLookupFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.tiers.err = errors.New("membership service down")
	env.mustCreateAccount(t, "lawyer-001")

	result, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
	})
	require.NoError(t, err, "档位查询失败不阻断积分")
	assert.Equal(t, int64(100), result.PointsEarned)
	assert.Equal(t, "1", result.MultiplierApplied)
}

func TestRecordActivityWriteConflictRetry(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3, RetryBackoff: time.Millisecond})
	env.mustCreateAccount(t, "lawyer-001")
	atomic.StoreInt32(&env.accounts.failSaves, 2)

	result, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
	})
	require.NoError(t, err, "冲突在重试预算内恢复")
	assert.Equal(t, int64(100), result.PointsEarned)

	acc, err := env.accounts.Get(context.Background(), "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.LevelPoints, "重试不重复入账")
}

func TestRecordActivityRetryBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 2, RetryBackoff: time.Millisecond})
	env.mustCreateAccount(t, "lawyer-001")
	atomic.StoreInt32(&env.accounts.failSaves, 100)

	_, err := env.svc.RecordActivity(context.Background(), RecordActivityCommand{
		AccountID: "lawyer-001",
		Action:    domain.ActionCaseCompleted,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWriteConflict)
	assert.Contains(t, err.Error(), "transaction failed after 2 retries")
}

func TestRecordActivityLevelUpEvent(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	// 二级门槛 200 分 / 3 件；先完成 2 件
	for i := 0; i < 2; i++ {
		_, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
			AccountID: "lawyer-001", Action: domain.ActionCaseCompleted,
		})
		require.NoError(t, err)
	}

	result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001", Action: domain.ActionCaseCompleted,
	})
	require.NoError(t, err)
	assert.True(t, result.LeveledUp)
	assert.Equal(t, 2, result.NewLevel)
	assert.Equal(t, 1, env.publisher.countTopic(domain.TopicLevelUp))
}

func TestSuspensionSignalFiresExactlyOnce(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
			AccountID: "lawyer-001", Action: domain.ActionCaseDeclined,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.publisher.countTopic(domain.TopicSuspensionSignal),
		"恰好跨过阈值时发一次，继续越界不重复发")
}

func TestMilestoneBonusAwardedExactlyOnce(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	// 预置昨日起往前 6 个连续活跃日，今日行为凑满 7 天连击
	now := time.Now()
	for i := 1; i <= 6; i++ {
		env.daily.seedBucket("lawyer-001", now.AddDate(0, 0, -i), 20)
	}

	result, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001", Action: domain.ActionDailyLogin,
	})
	require.NoError(t, err)
	assert.Contains(t, result.MilestonesAwarded, string(domain.MilestoneConsecutiveDays7))

	bonuses := env.txns.byAction("lawyer-001", domain.ActionMilestoneBonus)
	require.Len(t, bonuses, 1)
	assert.Equal(t, int64(50), bonuses[0].PointsChange)
	assert.Equal(t, "1", bonuses[0].MultiplierApplied.String(), "里程碑奖励不吃乘数")

	// 再次活动：同键不再发放
	again, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
		AccountID: "lawyer-001", Action: domain.ActionAIToolUsed,
	})
	require.NoError(t, err)
	assert.NotContains(t, again.MilestonesAwarded, string(domain.MilestoneConsecutiveDays7))
	assert.Len(t, env.txns.byAction("lawyer-001", domain.ActionMilestoneBonus), 1)
	assert.Equal(t, 1, env.publisher.countTopic(domain.TopicMilestoneAwarded))
}

func TestLedgerReconstructsBalance(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	actions := []domain.ActionKind{
		domain.ActionCaseCompleted,
		domain.ActionReviewFiveStar,
		domain.ActionCaseDeclined,
		domain.ActionCaseWon,
		domain.ActionLateResponse,
		domain.ActionReviewOneStar,
		domain.ActionDailyLogin,
	}
	for _, action := range actions {
		_, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
			AccountID: "lawyer-001", Action: action,
		})
		require.NoError(t, err)
	}

	acc, err := env.accounts.Get(ctx, "lawyer-001")
	require.NoError(t, err)
	sum, err := env.txns.SumChanges(ctx, "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, acc.LevelPoints, sum, "余额可由全量流水重建")

	// 每条流水的前后余额链条闭合
	entries, _, err := env.txns.ListByAccount(ctx, "lawyer-001", 0, 100)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, e.PointsAfter, e.PointsBefore+e.PointsChange)
	}
}

func TestConcurrentRecordActivityNoLostUpdate(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 10, RetryBackoff: time.Millisecond})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.RecordActivity(ctx, RecordActivityCommand{
				AccountID: "lawyer-001", Action: domain.ActionRespondToCase,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	acc, err := env.accounts.Get(ctx, "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*15), acc.LevelPoints, "并发写不丢更新")

	_, total, err := env.txns.ListByAccount(ctx, "lawyer-001", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), total)
}

func TestDowngradeCommand(t *testing.T) {
	env := newTestEnv(t, EngineOptions{MaxWriteRetries: 3})
	env.mustCreateAccount(t, "lawyer-001")
	ctx := context.Background()

	// 手工把账户推到三级
	acc, err := env.accounts.GetForUpdate(ctx, "lawyer-001")
	require.NoError(t, err)
	acc.Level = 3
	require.NoError(t, env.accounts.Save(ctx, acc))

	require.NoError(t, env.svc.Downgrade(ctx, "lawyer-001", 2))
	acc, err = env.accounts.Get(ctx, "lawyer-001")
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Level)

	assert.Error(t, env.svc.Downgrade(ctx, "lawyer-001", 5), "不允许向上降级")
}
