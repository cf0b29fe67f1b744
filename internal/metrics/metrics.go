// Package metrics 汇总 zfile 对外暴露的 Prometheus 指标。所有方法对 nil 接收者
// 安全，未启用指标时直接传 nil 即可。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zfile"

// Metrics 持有独立的 Registry，避免测试之间因全局注册冲突而 panic。
type Metrics struct {
	Registry *prometheus.Registry

	cacheEvents      *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	responses        *prometheus.CounterVec
}

// New 创建并注册全部指标，同时附带 Go runtime/process 采集器。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Resolution cache lookups by cache level and event (hit/miss/shared/evict).",
		}, []string{"cache", "event"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP calls by stage (links/metadata/content) and outcome.",
		}, []string{"stage", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Upstream HTTP latency by stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"stage"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Proxy responses by mode (metadata/redirect/stream/error).",
		}, []string{"mode"}),
	}
	reg.MustRegister(
		m.cacheEvents,
		m.upstreamRequests,
		m.upstreamLatency,
		m.responses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CacheEvent 记录一次缓存事件。
func (m *Metrics) CacheEvent(cache, event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(cache, event).Inc()
}

// ObserveUpstream 记录一次上游调用的结果与耗时。
func (m *Metrics) ObserveUpstream(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(stage, outcome).Inc()
	m.upstreamLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// Response 记录代理最终采用的响应方式。
func (m *Metrics) Response(mode string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(mode).Inc()
}

// Handler 返回 Prometheus 文本格式的 http.Handler。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
