// Package metrics 定义业务指标并暴露 Prometheus 采集端点。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skillswap"

var (
	// SwapTransitions 换技能申请状态变更计数
	// transition: created | accepted | rejected | withdrawn
	SwapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swap_transitions_total",
		Help:      "Swap request lifecycle transitions.",
	}, []string{"transition"})

	// NotificationDispatches 通知投递结果计数
	// outcome: sent | failed | skipped
	NotificationDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_dispatch_total",
		Help:      "Notification dispatch outcomes by kind.",
	}, []string{"kind", "outcome"})

	// NotificationLatency 通知投递耗时
	NotificationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_dispatch_seconds",
		Help:      "Time spent rendering and sending a notification.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// RealtimeSubscribers 当前实时订阅数
	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Active change-stream subscriptions.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware 记录每个路由的请求数与耗时
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler Prometheus 采集端点
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
