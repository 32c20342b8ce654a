package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 业务指标，全部注册到默认 Registry，由 /metrics 端点暴露。
var (
	// BidsPlacedTotal 累计创建的出价数。
	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_bids_placed_total",
		Help: "Total number of bids placed",
	})

	// BidDecisionsTotal 按决定类型（accept/reject）统计的出价处理数。
	BidDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrimandi_bid_decisions_total",
		Help: "Total number of bid decisions by outcome",
	}, []string{"decision"})

	// BidsWithdrawnTotal 累计撤回的出价数。
	BidsWithdrawnTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_bids_withdrawn_total",
		Help: "Total number of bids withdrawn by buyers",
	})

	// TransactionsRecordedTotal 累计落库的成交记录数。
	TransactionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_transactions_recorded_total",
		Help: "Total number of completed transactions recorded",
	})

	// AlertsGeneratedTotal 累计生成的低于 MSP 提醒数。
	AlertsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_alerts_generated_total",
		Help: "Total number of below-MSP alerts generated",
	})

	// AlertCheckDuration 单轮提醒对账耗时。
	AlertCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agrimandi_alert_check_duration_seconds",
		Help:    "Duration of a full below-MSP reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})

	// CheckoutSessionsCreatedTotal 累计创建的支付会话数。
	CheckoutSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_checkout_sessions_created_total",
		Help: "Total number of payment checkout sessions created",
	})

	// WebhookEventsTotal 按处理结果统计的网关通知数
	// （processed / duplicate / invalid_signature / ignored / rejected / error）。
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrimandi_webhook_events_total",
		Help: "Total number of payment webhook events by result",
	}, []string{"result"})

	// RateLimitWaitDuration 获取限流令牌的等待时间。
	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agrimandi_rate_limit_wait_duration_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10},
	})

	// RateLimitTimeoutTotal 等待限流令牌超时的次数。
	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimandi_rate_limit_timeout_total",
		Help: "Total number of rate limit token waits that timed out",
	})

	// WorkerPoolSize 调度器 Worker Pool 大小。
	WorkerPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agrimandi_worker_pool_size",
		Help: "Configured size of the scheduler worker pool",
	})
)

var initOnce sync.Once

// InitMetrics 设置启动时确定的静态指标。幂等，可重复调用。
func InitMetrics(workerPoolSize int) {
	initOnce.Do(func() {
		WorkerPoolSize.Set(float64(workerPoolSize))
	})
}
