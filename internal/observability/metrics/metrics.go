package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking webhook.
type BookingMetrics struct {
	requestsTotal     *prometheus.CounterVec
	appointmentsTotal *prometheus.CounterVec
	verificationTotal *prometheus.CounterVec
	replayTotal       *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Booking requests by terminal outcome",
		}, []string{"outcome"}),
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "appointments_total",
			Help:      "Per-appointment results (created, skipped, failed)",
		}, []string{"status"}),
		verificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "verification_total",
			Help:      "Bot verification results",
		}, []string{"result"}),
		replayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "replay_total",
			Help:      "Replay store decisions (replayed, in_progress, reserved, error)",
		}, []string{"decision"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "request_latency_seconds",
			Help:      "Latency of booking request processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.appointmentsTotal, m.verificationTotal, m.replayTotal, m.requestLatency)
	return m
}

func (m *BookingMetrics) ObserveRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveAppointment(status string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.verificationTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveReplay(decision string) {
	if m == nil {
		return
	}
	m.replayTotal.WithLabelValues(decision).Inc()
}
