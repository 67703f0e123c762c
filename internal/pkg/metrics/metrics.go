package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WishAddedTotal 许愿成功次数。
	WishAddedTotal prometheus.Counter
	// WishFulfilledTotal 愿望寄出成功次数。
	WishFulfilledTotal prometheus.Counter
	// OutOfStockRejectedTotal 因库存不足被拒绝的寄出次数。
	OutOfStockRejectedTotal prometheus.Counter
	// EmailSentTotal 发送成功的邮件数，按类型区分。
	EmailSentTotal *prometheus.CounterVec
	// EmailFailedTotal 发送失败的邮件数，按类型区分。
	EmailFailedTotal *prometheus.CounterVec
	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal prometheus.Counter

	initOnce sync.Once
)

// InitMetrics 注册所有 Prometheus 指标。
//
// 可以被重复调用（测试里每个用例都会调用一次），只有第一次生效。
func InitMetrics() {
	initOnce.Do(func() {
		WishAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardgallery_wish_added_total",
			Help: "Total number of wishes added.",
		})
		WishFulfilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardgallery_wish_fulfilled_total",
			Help: "Total number of wishes fulfilled.",
		})
		OutOfStockRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardgallery_out_of_stock_rejected_total",
			Help: "Total number of fulfillments rejected for empty stock.",
		})
		EmailSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgallery_email_sent_total",
			Help: "Total number of notification emails sent.",
		}, []string{"kind"})
		EmailFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardgallery_email_failed_total",
			Help: "Total number of notification emails that failed to send.",
		}, []string{"kind"})
		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardgallery_ratelimit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter.",
		})

		prometheus.MustRegister(
			WishAddedTotal,
			WishFulfilledTotal,
			OutOfStockRejectedTotal,
			EmailSentTotal,
			EmailFailedTotal,
			RateLimitRejectedTotal,
		)
	})
}
