package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	units         *prometheus.CounterVec
	gateway       *prometheus.CounterVec
	gatewayTime   prometheus.Histogram
	suppressed    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	sessions      prometheus.Gauge
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_cycles_total",
				Help: "Monitoring cycles by final state",
			},
			[]string{"state"},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fxpulse_cycle_duration_seconds",
				Help:    "Wall time of a monitoring cycle",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		units: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_cycle_units_total",
				Help: "Cycle units by kind and result",
			},
			[]string{"kind", "result"},
		),
		gateway: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_gateway_requests_total",
				Help: "Gateway fetches by result",
			},
			[]string{"result"},
		),
		gatewayTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fxpulse_gateway_duration_seconds",
				Help:    "Gateway fetch latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		suppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_notifications_suppressed_total",
				Help: "Candidates suppressed by policy",
			},
			[]string{"reason"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_deliveries_total",
				Help: "Channel delivery attempts",
			},
			[]string{"channel", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxpulse_errors_total",
				Help: "Errors by failure kind",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fxpulse_sessions",
				Help: "Live in-app sessions",
			},
		),
	}
}

func (r *Recorder) RecordCycle(state string, seconds float64) {
	r.cycles.WithLabelValues(state).Inc()
	r.cycleDuration.Observe(seconds)
}

func (r *Recorder) RecordUnit(kind, result string) {
	r.units.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordGateway(result string, seconds float64) {
	r.gateway.WithLabelValues(result).Inc()
	r.gatewayTime.Observe(seconds)
}

func (r *Recorder) RecordSuppressed(reason string) {
	r.suppressed.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordDelivery(channel string, ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	r.deliveries.WithLabelValues(channel, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetSessions(n int) {
	r.sessions.Set(float64(n))
}
