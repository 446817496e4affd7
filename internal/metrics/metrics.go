// Package metrics 定义问答流水线和HTTP服务的Prometheus指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyerfyer/transcript-qa/internal/services"
)

// Metrics 所有指标收集器
type Metrics struct {
	StageDuration       *prometheus.HistogramVec
	StageErrorsTotal    *prometheus.CounterVec
	DocumentsLoaded     prometheus.Counter
	SegmentsIndexed     prometheus.Counter
	QueriesTotal        prometheus.Counter
	RetrievedSegments   prometheus.Histogram
	AnswerFragments     prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New 创建指标并注册到reg，reg为nil时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tqa_stage_duration_seconds",
				Help:    "Pipeline stage latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		StageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tqa_stage_errors_total",
				Help: "Total pipeline stage failures by stage.",
			},
			[]string{"stage"},
		),
		DocumentsLoaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tqa_documents_loaded_total",
				Help: "Total documents loaded.",
			},
		),
		SegmentsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tqa_segments_embedded_total",
				Help: "Total segments embedded for indexing.",
			},
		),
		QueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tqa_queries_total",
				Help: "Total questions asked.",
			},
		),
		RetrievedSegments: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tqa_retrieved_segments",
				Help:    "Number of context segments retrieved per question.",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),
		AnswerFragments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tqa_answer_fragments_total",
				Help: "Total streamed answer fragments.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tqa_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tqa_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.StageDuration,
		m.StageErrorsTotal,
		m.DocumentsLoaded,
		m.SegmentsIndexed,
		m.QueriesTotal,
		m.RetrievedSegments,
		m.AnswerFragments,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Observe 实现services.Hook接口
func (m *Metrics) Observe(event services.Event) {
	stage := string(event.Stage)
	if event.Err != nil {
		m.StageErrorsTotal.WithLabelValues(stage).Inc()
	}
	if event.Duration > 0 {
		m.StageDuration.WithLabelValues(stage).Observe(event.Duration.Seconds())
	}
	if event.Err != nil {
		return
	}

	switch event.Stage {
	case services.StageLoadDone:
		m.DocumentsLoaded.Add(float64(event.Count))
	case services.StageEmbedDone:
		m.SegmentsIndexed.Add(float64(event.Count))
	case services.StageQueryStart:
		m.QueriesTotal.Inc()
	case services.StageRetrieveDone:
		m.RetrievedSegments.Observe(float64(event.Count))
	case services.StageStreamChunk:
		m.AnswerFragments.Inc()
	}
}

// ObserveHTTP 记录一次HTTP请求
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler 返回Prometheus抓取接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
