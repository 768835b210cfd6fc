package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	VotesTotal           *prometheus.CounterVec   // labels: vote
	ReportsTotal         *prometheus.CounterVec   // labels: status
	SessionStartTotal    *prometheus.CounterVec   // labels: result=ok|conflict|no_charger|error
	SessionEndTotal      *prometheus.CounterVec   // labels: result=ok|not_active|error
	ActiveSessionsGauge  prometheus.Gauge         // 当前活跃充电会话数
	SummarizeDuration    prometheus.Histogram     // 信任摘要计算耗时
	SummarizeCacheTotal  *prometheus.CounterVec   // labels: result=hit|miss
	EventsEnqueuedTotal  *prometheus.CounterVec   // labels: type
	StorageRetriesTotal  prometheus.Counter       // 存储层瞬时错误重试次数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_votes_total",
			Help: "Verification votes ingested, by vote category.",
		}, []string{"vote"}),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "station_reports_total",
			Help: "Station reports ingested, by reported status.",
		}, []string{"status"}),
		SessionStartTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charging_session_start_total",
			Help: "Charging session start attempts, by result.",
		}, []string{"result"}),
		SessionEndTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charging_session_end_total",
			Help: "Charging session end attempts, by result.",
		}, []string{"result"}),
		ActiveSessionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "charging_sessions_active",
			Help: "Current number of active charging sessions.",
		}),
		SummarizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trust_summarize_duration_seconds",
			Help:    "Verification summary computation latency.",
			Buckets: prometheus.DefBuckets,
		}),
		SummarizeCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trust_summarize_cache_total",
			Help: "Verification summary cache lookups, by result.",
		}, []string{"result"}),
		EventsEnqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_enqueued_total",
			Help: "Notification events enqueued, by event type.",
		}, []string{"type"}),
		StorageRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_transient_retries_total",
			Help: "Transient storage errors retried with backoff.",
		}),
	}
	reg.MustRegister(
		m.VotesTotal, m.ReportsTotal,
		m.SessionStartTotal, m.SessionEndTotal, m.ActiveSessionsGauge,
		m.SummarizeDuration, m.SummarizeCacheTotal,
		m.EventsEnqueuedTotal, m.StorageRetriesTotal,
	)
	return m
}
