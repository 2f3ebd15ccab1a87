package prometheus

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot tenantauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() tenantauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectNothingWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters:   map[tenantauth.MetricID]uint64{},
			Histograms: map[tenantauth.MetricID][]uint64{},
		},
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d families", len(families))
	}
}

func TestHandlerIncludesCounterAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: tenantauth.MetricsSnapshot{
			Counters: map[tenantauth.MetricID]uint64{
				tenantauth.MetricLoginSuccess: 7,
			},
			Histograms: map[tenantauth.MetricID][]uint64{
				tenantauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, c)
	for _, want := range []string{
		"tenantauth_login_success_total 7",
		"tenantauth_login_failure_total 0",
		`tenantauth_validate_latency_seconds_bucket{le="0.005"} 1`,
		`tenantauth_validate_latency_seconds_bucket{le="0.5"} 28`,
		`tenantauth_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"tenantauth_validate_latency_seconds_count 36",
		"tenantauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestCollectorRegistersWithoutConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectorFromSource(fakeSource{snapshot: tenantauth.MetricsSnapshot{
		Counters: map[tenantauth.MetricID]uint64{tenantauth.MetricLogout: 1},
	}})
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	// Every counter plus audit dropped; the histogram is absent from the
	// snapshot.
	if len(families) != len(c.counters)+1 {
		t.Fatalf("expected %d families, got %d", len(c.counters)+1, len(families))
	}
}
