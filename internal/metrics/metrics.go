// Package metrics 定义 Prometheus 指标
// 每个 Metrics 使用独立的 Registry，测试之间互不影响
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务端指标集合
// 方法对 nil 接收者安全，未启用指标时可以直接传 nil
type Metrics struct {
	registry        *prometheus.Registry
	snapshotLoads   *prometheus.CounterVec
	snapshotReplace *prometheus.CounterVec
	logins          *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phm_snapshot_loads_total",
			Help: "Snapshot loads by source (cache or store).",
		}, []string{"source"}),
		snapshotReplace: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phm_snapshot_replaces_total",
			Help: "Full snapshot replacements by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phm_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phm_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.snapshotLoads,
		m.snapshotReplace,
		m.logins,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 返回 /metrics 的处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 暴露给测试
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SnapshotLoaded(source string) {
	if m == nil {
		return
	}
	m.snapshotLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) SnapshotReplaced(result string) {
	if m == nil {
		return
	}
	m.snapshotReplace.WithLabelValues(result).Inc()
}

func (m *Metrics) Login(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveRequest 记录一次 HTTP 请求耗时
// route 使用路由模板（如 /api/v1/accounts/search/:powerhouse/:id），避免标签基数爆炸
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
