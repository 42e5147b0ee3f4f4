// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// poll.Metrics、vote.Metrics、closer.Metricsの各インターフェースを満たす。
type Collector struct {
	pollsCreated prometheus.Counter
	pollsClosed  prometheus.Counter
	closeRetries prometheus.Counter
	votesCast    prometheus.Counter
	votesReject  *prometheus.CounterVec
	voteLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollup_polls_created_total",
			Help: "作成された投票の合計数",
		}),
		pollsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollup_polls_closed_total",
			Help: "クローズされた投票の合計数",
		}),
		closeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollup_close_retry_total",
			Help: "クローズ処理の再試行回数",
		}),
		votesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pollup_votes_cast_total",
			Help: "受理された票の合計数",
		}),
		votesReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pollup_votes_rejected_total",
			Help: "拒否理由別の票の合計数",
		}, []string{"reason"}),
		voteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollup_vote_latency_seconds",
			Help:    "投票処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.pollsCreated,
		c.pollsClosed,
		c.closeRetries,
		c.votesCast,
		c.votesReject,
		c.voteLatency,
	)

	return c
}

// RecordPollCreated は投票の作成を記録する。
func (c *Collector) RecordPollCreated() {
	c.pollsCreated.Inc()
}

// RecordPollClosed は投票のクローズを記録する。
func (c *Collector) RecordPollClosed() {
	c.pollsClosed.Inc()
}

// RecordCloseRetry はクローズ処理の再試行を記録する。
func (c *Collector) RecordCloseRetry() {
	c.closeRetries.Inc()
}

// RecordVoteAccepted は受理された票を記録する。
func (c *Collector) RecordVoteAccepted() {
	c.votesCast.Inc()
}

// RecordVoteRejected は拒否された票を理由付きで記録する。
func (c *Collector) RecordVoteRejected(reason string) {
	c.votesReject.WithLabelValues(reason).Inc()
}

// RecordVoteLatency は投票処理のレイテンシを記録する。
func (c *Collector) RecordVoteLatency(duration time.Duration) {
	c.voteLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
