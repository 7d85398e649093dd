package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("matched", "AcoustID")
	m.ObserveRequest("matched", "AcoustID")
	m.ObserveRequest("provider_miss", "")
	m.ObserveLookup("AudD", "no_match")

	if got := testutil.ToFloat64(m.Requests.WithLabelValues("matched", "AcoustID")); got != 2 {
		t.Errorf("Expected 2 matched requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("provider_miss", "none")); got != 1 {
		t.Errorf("Empty source should be recorded as none, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProviderLookups.WithLabelValues("AudD", "no_match")); got != 1 {
		t.Errorf("Expected 1 lookup, got %v", got)
	}
}

func TestStageTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	stop := m.StageTimer("fingerprinting")
	stop()
	m.ObserveAudio(10)

	if n := testutil.CollectAndCount(m.StageDuration); n != 1 {
		t.Errorf("Expected 1 stage series, got %d", n)
	}
	if n := testutil.CollectAndCount(m.AudioDuration); n != 1 {
		t.Errorf("Expected audio histogram, got %d", n)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("matched", "x")
	m.ObserveLookup("x", "y")
	m.ObserveAudio(1)
	m.StageTimer("s")()
}
