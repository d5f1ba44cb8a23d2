package rsdf

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seisnet/cd11streams/metric"
)

// Metrics counts pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	records        prometheus.Counter
	duplicates     prometheus.Counter
	parseFailures  prometheus.Counter
	publishFailure *prometheus.CounterVec
	issues         prometheus.Counter
	parseDuration  prometheus.Histogram
}

// NewMetrics creates and registers pipeline metrics. It returns nil when
// registry is nil.
func NewMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}
	m := &Metrics{
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "records_total",
			Help:      "Raw frame records read from the source",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "duplicates_total",
			Help:      "Retransmitted records dropped before parsing",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "parse_failures_total",
			Help:      "Records dropped because parsing failed",
		}),
		publishFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "publish_failures_total",
			Help:      "Publishes abandoned after retries, by subject",
		}, []string{"subject"}),
		issues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "issues_published_total",
			Help:      "Individual environmental issues published",
		}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "rsdf",
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one record",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	const service = "rsdf"
	_ = registry.RegisterCounter(service, "records", m.records)
	_ = registry.RegisterCounter(service, "duplicates", m.duplicates)
	_ = registry.RegisterCounter(service, "parse_failures", m.parseFailures)
	_ = registry.RegisterCounterVec(service, "publish_failures", m.publishFailure)
	_ = registry.RegisterCounter(service, "issues_published", m.issues)
	_ = registry.RegisterHistogram(service, "parse_duration", m.parseDuration)
	return m
}

func (m *Metrics) record() {
	if m != nil {
		m.records.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) parsed(seconds float64, err error) {
	if m == nil {
		return
	}
	m.parseDuration.Observe(seconds)
	if err != nil {
		m.parseFailures.Inc()
	}
}

func (m *Metrics) publishFailed(subject string) {
	if m != nil {
		m.publishFailure.WithLabelValues(subject).Inc()
	}
}

func (m *Metrics) issuePublished() {
	if m != nil {
		m.issues.Inc()
	}
}
