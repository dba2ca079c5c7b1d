// Package metrics 推送流程的 Prometheus 指标
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "arxiv_digest"

// 批次状态标签
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder 使用独立的 registry，nil 也可以安全调用
type Recorder struct {
	registry *prometheus.Registry

	batchesTotal        *prometheus.CounterVec
	batchDuration       prometheus.Histogram
	retriesTotal        prometheus.Counter
	hallucinationsTotal prometheus.Counter
	papersScored        prometheus.Counter
	recordsSelected     prometheus.Counter
	summariesTotal      *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_batches_total",
				Help:      "Total number of scoring batches by status",
			},
			[]string{"status"},
		),
		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scoring_batch_duration_seconds",
				Help:      "Duration of one scoring batch including retries",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
			},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_retries_total",
				Help:      "Total number of retried scoring requests",
			},
		),
		hallucinationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scoring_hallucinations_total",
				Help:      "Batches whose response had fewer records than papers",
			},
		),
		papersScored: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "papers_scored_total",
				Help:      "Total number of papers scored successfully",
			},
		),
		recordsSelected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_selected_total",
				Help:      "Total number of records at or above the threshold",
			},
		),
		summariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summaries_total",
				Help:      "Summaries by source (cache, model, fallback)",
			},
			[]string{"source"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification attempts by channel and status",
			},
			[]string{"channel", "status"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordBatch 记录一个评分批次；失败的批次 papers 传 0
func (r *Recorder) RecordBatch(status string, papers, selected int, duration time.Duration) {
	if r == nil {
		return
	}
	r.batchesTotal.WithLabelValues(status).Inc()
	r.batchDuration.Observe(duration.Seconds())
	r.papersScored.Add(float64(papers))
	r.recordsSelected.Add(float64(selected))
}

func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retriesTotal.Inc()
}

// RecordHallucination 回复对象少于论文数
func (r *Recorder) RecordHallucination() {
	if r == nil {
		return
	}
	r.hallucinationsTotal.Inc()
}

// RecordSummary source 取 cache / model / fallback
func (r *Recorder) RecordSummary(source string) {
	if r == nil {
		return
	}
	r.summariesTotal.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordNotification(channel, status string) {
	if r == nil {
		return
	}
	r.notificationsTotal.WithLabelValues(channel, status).Inc()
}

// Push 把全部指标推到 Pushgateway
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
