// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 各ポーリングループから利用する。
type MetricsCollector interface {
	RecordSyncSuccess()
	RecordSyncFailure()
	RecordContentChange()
	RecordCacheServe()
	RecordSyncLatency(duration time.Duration)
	RecordHeartbeatSuccess()
	RecordHeartbeatFailure()
	RecordCommandExecuted(cmdType string)
	RecordEventsDrained(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess      prometheus.Counter
	syncFail         prometheus.Counter
	contentChange    prometheus.Counter
	cacheServe       prometheus.Counter
	syncLatency      prometheus.Histogram
	heartbeatSuccess prometheus.Counter
	heartbeatFail    prometheus.Counter
	commandExecuted  *prometheus.CounterVec
	eventsDrained    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_sync_success_total",
			Help: "コンテンツ同期成功の合計数",
		}),
		syncFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_sync_fail_total",
			Help: "コンテンツ同期失敗の合計数",
		}),
		contentChange: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_content_change_total",
			Help: "フィンガープリント変化によるコンテンツ更新の合計数",
		}),
		cacheServe: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_cache_serve_total",
			Help: "キャッシュからのコンテンツ配信（オフラインモード）の合計数",
		}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kioskd_sync_latency_seconds",
			Help:    "コンテンツ同期のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		heartbeatSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_heartbeat_success_total",
			Help: "ハートビート成功の合計数",
		}),
		heartbeatFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_heartbeat_fail_total",
			Help: "ハートビート失敗の合計数",
		}),
		commandExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kioskd_command_executed_total",
			Help: "コマンド種別ごとの実行数",
		}, []string{"command_type"}),
		eventsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kioskd_events_drained_total",
			Help: "同期済みになったオフラインイベントの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.contentChange,
		c.cacheServe,
		c.syncLatency,
		c.heartbeatSuccess,
		c.heartbeatFail,
		c.commandExecuted,
		c.eventsDrained,
	)

	return c
}

// RecordSyncSuccess はコンテンツ同期成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure はコンテンツ同期失敗を記録する。
func (c *Collector) RecordSyncFailure() {
	c.syncFail.Inc()
}

// RecordContentChange はコンテンツの変化を記録する。
func (c *Collector) RecordContentChange() {
	c.contentChange.Inc()
}

// RecordCacheServe はキャッシュからのコンテンツ配信を記録する。
func (c *Collector) RecordCacheServe() {
	c.cacheServe.Inc()
}

// RecordSyncLatency は同期のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordHeartbeatSuccess はハートビート成功を記録する。
func (c *Collector) RecordHeartbeatSuccess() {
	c.heartbeatSuccess.Inc()
}

// RecordHeartbeatFailure はハートビート失敗を記録する。
func (c *Collector) RecordHeartbeatFailure() {
	c.heartbeatFail.Inc()
}

// RecordCommandExecuted はコマンド実行を種別ごとに記録する。
func (c *Collector) RecordCommandExecuted(cmdType string) {
	c.commandExecuted.WithLabelValues(cmdType).Inc()
}

// RecordEventsDrained は同期済みになったオフラインイベント数を記録する。
func (c *Collector) RecordEventsDrained(count int) {
	c.eventsDrained.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
