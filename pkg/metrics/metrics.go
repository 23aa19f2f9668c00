// Package metrics 提供 Prometheus helper，包含 HTTP 通用指标与积分引擎业务指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 积分流水计数（按行为类型、是否受限）
	PointTransactionsTotal *prometheus.CounterVec
	// 发放积分总量
	PointsAwardedTotal *prometheus.CounterVec
	// 账本写冲突计数
	LedgerWriteConflicts prometheus.Counter
	// 每日上限拦截计数
	DailyCapRejections *prometheus.CounterVec
	// 升级事件计数
	LevelUpsTotal prometheus.Counter
	// 里程碑发放计数
	MilestonesAwarded *prometheus.CounterVec
	// 风控信号计数
	SuspensionSignals prometheus.Counter
	// Outbox 待发消息
	OutboxPending prometheus.Gauge
}

// New 创建指标实例并注册到默认 Registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PointTransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "point_transactions_total",
			Help:      "Total point transactions recorded",
		}, []string{"action", "capped"}),
		PointsAwardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "points_awarded_total",
			Help:      "Total points awarded (absolute value)",
		}, []string{"action", "direction"}),
		LedgerWriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "ledger_write_conflicts_total",
			Help:      "Optimistic lock conflicts on ledger append",
		}),
		DailyCapRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "daily_cap_rejections_total",
			Help:      "Rewards zeroed because the per-day action cap was reached",
		}, []string{"action"}),
		LevelUpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "level_ups_total",
			Help:      "Total level up events",
		}),
		MilestonesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "milestones_awarded_total",
			Help:      "Total one-time milestones awarded",
		}, []string{"milestone"}),
		SuspensionSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "suspension_signals_total",
			Help:      "Suspension signals raised by the abuse monitor",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lawsker",
			Subsystem: serviceName,
			Name:      "outbox_pending_messages",
			Help:      "Outbox messages waiting to be relayed",
		}),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PointTransactionsTotal,
		m.PointsAwardedTotal,
		m.LedgerWriteConflicts,
		m.DailyCapRejections,
		m.LevelUpsTotal,
		m.MilestonesAwarded,
		m.SuspensionSignals,
		m.OutboxPending,
	)

	return m
}

// Handler 返回 /metrics 的 HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
