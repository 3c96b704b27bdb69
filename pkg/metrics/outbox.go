package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts what the publisher does with each outbox row.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	batchSize    prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_outbox_published_total",
			Help: "Outbox events delivered to Pub/Sub by topic.",
		}, []string{"topic"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_outbox_retries_total",
			Help: "Transient publish failures left for a later attempt.",
		}, []string{"topic"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensing_outbox_dead_lettered_total",
			Help: "Outbox events moved to the DLQ by reason.",
		}, []string{"reason"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "licensing_outbox_batch_size",
			Help:    "Rows claimed per publisher poll.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.published, m.retried, m.deadLettered, m.batchSize)
	return m
}

func (m *OutboxMetrics) IncPublished(topic string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxMetrics) IncRetried(topic string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(n int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}
