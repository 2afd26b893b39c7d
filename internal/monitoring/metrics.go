package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 每个实例使用独立的 Registry，测试中可以重复创建。
// 所有 Record 方法对 nil 接收者安全。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 黑名单网关指标
	GateResults    *prometheus.CounterVec   // outcome: clear / rejected / failed
	OracleRequests *prometheus.CounterVec   // verb, result
	OracleDuration *prometheus.HistogramVec // verb

	// 邮件指标
	MailsSent          prometheus.Counter
	DraftsSent         prometheus.Counter
	MailsDeleted       *prometheus.CounterVec // side: sender / receiver
	StoreInconsistency prometheus.Counter

	// 错误指标
	PanicsTotal prometheus.Counter

	RateLimited prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		GateResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_gate_results_total",
				Help: "Delivery gate decisions by outcome",
			},
			[]string{"outcome"},
		),

		OracleRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_oracle_requests_total",
				Help: "Blacklist oracle round trips by verb and result",
			},
			[]string{"verb", "result"},
		),

		OracleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webmail_oracle_request_duration_seconds",
				Help:    "Blacklist oracle round trip duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
			},
			[]string{"verb"},
		),

		MailsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_mails_sent_total",
				Help: "Total number of mails created directly",
			},
		),

		DraftsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_drafts_sent_total",
				Help: "Total number of drafts converted into mails",
			},
		),

		MailsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webmail_mails_deleted_total",
				Help: "Soft deletions by side",
			},
			[]string{"side"},
		),

		StoreInconsistency: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_store_inconsistency_total",
				Help: "Sends where the mail was stored but the draft was not removed",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webmail_rate_limited_total",
				Help: "Requests rejected by the per-caller rate limiter",
			},
		),
	}
}

// HTTPHandler 返回 Prometheus 抓取端点
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordGate 记录网关判定结果
func (m *Metrics) RecordGate(outcome string) {
	if m == nil {
		return
	}
	m.GateResults.WithLabelValues(outcome).Inc()
}

// RecordOracle 记录一次黑名单服务往返
func (m *Metrics) RecordOracle(verb, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OracleRequests.WithLabelValues(verb, result).Inc()
	m.OracleDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

// RecordMailSent 记录直接发送的邮件
func (m *Metrics) RecordMailSent() {
	if m == nil {
		return
	}
	m.MailsSent.Inc()
}

// RecordDraftSent 记录草稿发送
func (m *Metrics) RecordDraftSent() {
	if m == nil {
		return
	}
	m.DraftsSent.Inc()
}

// RecordMailDeleted 记录软删除
func (m *Metrics) RecordMailDeleted(side string) {
	if m == nil {
		return
	}
	m.MailsDeleted.WithLabelValues(side).Inc()
}

// RecordStoreInconsistency 记录发送后草稿残留
func (m *Metrics) RecordStoreInconsistency() {
	if m == nil {
		return
	}
	m.StoreInconsistency.Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimited 记录被限流的请求
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
