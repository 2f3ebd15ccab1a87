package tenantauth

import (
	"time"

	internalmetrics "github.com/MrEthical07/tenantauth/internal/metrics"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLockoutTriggered
	MetricLockoutUnavailable
	MetricTenantNotFound
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricValidateSuccess
	MetricValidateFailure
	MetricPermissionDenied
	MetricCrossTenantRole
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionRevoked
	MetricLogout
	MetricLogoutAll
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected
	MetricPasswordRehash
	MetricAccountDisabled
	MetricPersistenceFailure
	MetricValidateLatency
	metricIDCount
)

// HistogramBucketCount is the number of latency buckets in a snapshot.
// Bounds are 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms and +Inf.
const HistogramBucketCount = internalmetrics.BucketCount

// MetricsConfig toggles counters and the validate latency histogram.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// Metrics holds lock free engine counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	table         *internalmetrics.Table
}

// MetricsSnapshot is a point in time copy of every counter. Histogram
// buckets are not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates the counter table.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		table:         internalmetrics.NewTable(int(metricIDCount), int(metricIDCount)),
	}
}

// Enabled reports whether counters record anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate histogram records anything.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id. It is a no-op when metrics are disabled.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.table.Inc(int(id))
}

// Observe records a latency. Only MetricValidateLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	m.table.Observe(int(id), d)
}

// Value loads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.table.Value(int(id))
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = m.table.Value(int(id))
	}
	if m.enableLatency {
		s.Histograms[MetricValidateLatency] = m.table.Buckets(int(MetricValidateLatency))
	}
	return s
}
