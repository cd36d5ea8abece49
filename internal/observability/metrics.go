package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "docchat"

// Metrics groups the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so callers never need to check.
type Metrics struct {
	uploadBytes        prometheus.Counter
	uploadChunks       *prometheus.CounterVec
	processingTotal    *prometheus.CounterVec
	processingDuration prometheus.Histogram
	embeddingTexts     *prometheus.CounterVec
	retrievalHits      prometheus.Histogram
	streamsTotal       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes appended to upload temp files",
		}),
		uploadChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "upload",
			Name:      "chunks_total",
			Help:      "Upload chunk appends by outcome",
		}, []string{"outcome"}),
		processingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "processing",
			Name:      "documents_total",
			Help:      "Processed documents by terminal status",
		}, []string{"status"}),
		processingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "processing",
			Name:      "duration_seconds",
			Help:      "Document processing duration",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		embeddingTexts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Embedded texts by source (provider or fallback)",
		}, []string{"source"}),
		retrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "retrieval",
			Name:      "hits",
			Help:      "Chunks returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "streams_total",
			Help:      "Answer streams by outcome",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.uploadBytes,
			m.uploadChunks,
			m.processingTotal,
			m.processingDuration,
			m.embeddingTexts,
			m.retrievalHits,
			m.streamsTotal,
		)
	}
	return m
}

func (m *Metrics) ObserveUploadChunk(outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.uploadChunks.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.uploadBytes.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveProcessing(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processingTotal.WithLabelValues(status).Inc()
	m.processingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveEmbedding(source string, texts int) {
	if m == nil {
		return
	}
	m.embeddingTexts.WithLabelValues(source).Add(float64(texts))
}

func (m *Metrics) ObserveRetrieval(hits int) {
	if m == nil {
		return
	}
	m.retrievalHits.Observe(float64(hits))
}

func (m *Metrics) ObserveStream(outcome string) {
	if m == nil {
		return
	}
	m.streamsTotal.WithLabelValues(outcome).Inc()
}
