// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スケジューラとサービス層から利用する。
type MetricsCollector interface {
	RecordPollSuccess(feedID string)
	RecordPollFailure(feedID string, statusCode int)
	RecordFeedDeactivated(feedID string)
	RecordPollLatency(duration time.Duration)
	RecordArticlesFetched(count int)
	RecordPollCycle(duration time.Duration, feedCount int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pollSuccess     prometheus.Counter
	pollFail        *prometheus.CounterVec
	feedDeactivated prometheus.Counter
	pollLatency     prometheus.Histogram
	articlesFetched prometheus.Counter
	cycleDuration   prometheus.Histogram
	cycleFeeds      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthfeed_poll_success_total",
			Help: "フィードポーリング成功の合計数",
		}),
		pollFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthfeed_poll_fail_total",
			Help: "ステータスコード別のフィードポーリング失敗数",
		}, []string{"status_code"}),
		feedDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthfeed_feed_deactivated_total",
			Help: "恒久的な失敗で無効化されたフィードの合計数",
		}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthfeed_poll_latency_seconds",
			Help:    "1フィードのポーリングレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthfeed_articles_fetched_total",
			Help: "取得された記事の合計数",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthfeed_poll_cycle_duration_seconds",
			Help:    "ポーリングサイクル全体の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		cycleFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthfeed_poll_cycle_feeds",
			Help: "直近のポーリングサイクルで処理されたフィード数",
		}),
	}

	reg.MustRegister(
		c.pollSuccess,
		c.pollFail,
		c.feedDeactivated,
		c.pollLatency,
		c.articlesFetched,
		c.cycleDuration,
		c.cycleFeeds,
	)

	return c
}

// RecordPollSuccess はポーリング成功を記録する。
func (c *Collector) RecordPollSuccess(feedID string) {
	c.pollSuccess.Inc()
}

// RecordPollFailure はポーリング失敗をステータスコード別に記録する。
func (c *Collector) RecordPollFailure(feedID string, statusCode int) {
	c.pollFail.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFeedDeactivated はフィード無効化を記録する。
func (c *Collector) RecordFeedDeactivated(feedID string) {
	c.feedDeactivated.Inc()
}

// RecordPollLatency は1フィードのポーリングレイテンシを記録する。
func (c *Collector) RecordPollLatency(duration time.Duration) {
	c.pollLatency.Observe(duration.Seconds())
}

// RecordArticlesFetched は取得された記事数を記録する。
func (c *Collector) RecordArticlesFetched(count int) {
	c.articlesFetched.Add(float64(count))
}

// RecordPollCycle はサイクル全体の所要時間と処理フィード数を記録する。
func (c *Collector) RecordPollCycle(duration time.Duration, feedCount int) {
	c.cycleDuration.Observe(duration.Seconds())
	c.cycleFeeds.Set(float64(feedCount))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
