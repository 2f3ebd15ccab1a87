package tenantauth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("disabled metrics must report disabled")
	}
	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}

func TestMetricsSnapshotShape(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, time.Second)
	// Only the validate latency has a histogram.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	s := m.Snapshot()
	if s.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 logins, got %d", s.Counters[MetricLoginSuccess])
	}
	if _, ok := s.Counters[MetricValidateLatency]; ok {
		t.Fatal("latency id must not appear as a counter")
	}
	if len(s.Counters) != int(metricIDCount)-1 {
		t.Fatalf("expected %d counters, got %d", int(metricIDCount)-1, len(s.Counters))
	}
	h := s.Histograms[MetricValidateLatency]
	if len(h) != HistogramBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistogramBucketCount, len(h))
	}
	if h[0] != 1 || h[HistogramBucketCount-1] != 1 {
		t.Fatalf("unexpected buckets: %v", h)
	}
	if len(s.Histograms) != 1 {
		t.Fatalf("expected one histogram, got %d", len(s.Histograms))
	}
}

func TestMetricsWithoutHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)
	if len(m.Snapshot().Histograms) != 0 {
		t.Fatal("histograms disabled must not be reported")
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	const workers, per = 8, 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				m.Inc(MetricValidateSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricValidateSuccess); got != workers*per {
		t.Fatalf("expected %d, got %d", workers*per, got)
	}
}

func TestEngineValidateRecordsLatency(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.loginAdmin(t)

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Validate(context.Background(), res.AccessToken); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	s := env.engine.MetricsSnapshot()
	var total uint64
	for _, v := range s.Histograms[MetricValidateLatency] {
		total += v
	}
	if total != 3 {
		t.Fatalf("expected 3 latency samples, got %d", total)
	}
	if s.Counters[MetricValidateSuccess] != 3 {
		t.Fatalf("expected 3 validations, got %d", s.Counters[MetricValidateSuccess])
	}
}

func TestEngineMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.Metrics.Enabled = false
	})
	env.loginAdmin(t)
	if len(env.engine.MetricsSnapshot().Counters) != 0 {
		t.Fatal("disabled engine metrics must stay empty")
	}
}
