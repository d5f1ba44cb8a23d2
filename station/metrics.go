package station

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/metric"
)

// Metrics holds Prometheus metrics shared by all sessions of a server.
// A nil *Metrics records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	malformedFrames prometheus.Counter
	bytesReceived   prometheus.Counter
	bytesSent       prometheus.Counter
	lastActivity    prometheus.Gauge
}

// NewMetrics creates and registers the station metrics. It returns nil when
// registry is nil.
func NewMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "sessions_active",
			Help:      "Open station sessions",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "sessions_total",
			Help:      "Station sessions accepted",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "frames_received_total",
			Help:      "Decoded frames received by frame type",
		}, []string{"frame_type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "frames_sent_total",
			Help:      "Frames sent by frame type",
		}, []string{"frame_type"}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that failed to decode",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "bytes_received_total",
			Help:      "Bytes of complete frames received",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "bytes_sent_total",
			Help:      "Bytes of frames sent",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last frame received",
		}),
	}

	const service = "station"
	_ = registry.RegisterGauge(service, "sessions_active", m.sessionsActive)
	_ = registry.RegisterCounter(service, "sessions_total", m.sessionsTotal)
	_ = registry.RegisterCounterVec(service, "frames_received", m.framesReceived)
	_ = registry.RegisterCounterVec(service, "frames_sent", m.framesSent)
	_ = registry.RegisterCounter(service, "malformed_frames", m.malformedFrames)
	_ = registry.RegisterCounter(service, "bytes_received", m.bytesReceived)
	_ = registry.RegisterCounter(service, "bytes_sent", m.bytesSent)
	_ = registry.RegisterGauge(service, "last_activity", m.lastActivity)
	return m
}

func (m *Metrics) frameReceived(res cd11.FrameOrMalformed, size int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(size))
	m.lastActivity.Set(float64(time.Now().Unix()))
	if f, ok := res.AsFrame(); ok {
		m.framesReceived.WithLabelValues(f.Type().String()).Inc()
		return
	}
	m.malformedFrames.Inc()
}

func (m *Metrics) frameSent(t cd11.FrameType, size int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(t.String()).Inc()
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}
