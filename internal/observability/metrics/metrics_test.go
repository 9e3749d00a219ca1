package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveRequest("success", 0.25)
	m.ObserveRequest("success", 0.5)
	m.ObserveRequest("rejected", 0.01)
	m.ObserveAppointment("created")
	m.ObserveAppointment("skipped")
	m.ObserveVerification("accepted")
	m.ObserveReplay("replayed")

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.appointmentsTotal.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected 1 skipped appointment, got %v", got)
	}
	if got := testutil.ToFloat64(m.verificationTotal.WithLabelValues("accepted")); got != 1 {
		t.Fatalf("expected 1 accepted verification, got %v", got)
	}
	if got := testutil.ToFloat64(m.replayTotal.WithLabelValues("replayed")); got != 1 {
		t.Fatalf("expected 1 replay, got %v", got)
	}
}

func TestBookingMetricsLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveRequest("succeeded", 0.2)
	m.ObserveRequest("succeeded", 0.4)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "booking_webhook_request_latency_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatalf("latency histogram not exported")
	}
	if hist.GetSampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", hist.GetSampleCount())
	}
	if sum := hist.GetSampleSum(); sum < 0.59 || sum > 0.61 {
		t.Fatalf("expected sample sum 0.6, got %v", sum)
	}
}

func TestBookingMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewBookingMetrics(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewBookingMetrics(reg)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveRequest("success", 0.1)
	m.ObserveAppointment("created")
	m.ObserveVerification("rejected")
	m.ObserveReplay("error")
}
