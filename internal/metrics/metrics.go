package metrics

import (
	"sync/atomic"
	"time"
)

// BucketCount is the fixed number of histogram buckets.
const BucketCount = 8

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Table is a fixed-size set of counters and histograms indexed by small
// integers. Out of range indexes are ignored.
type Table struct {
	counters   []paddedCounter
	histograms []histogram
}

// NewTable allocates counters and histograms slots.
func NewTable(counters, histograms int) *Table {
	return &Table{
		counters:   make([]paddedCounter, counters),
		histograms: make([]histogram, histograms),
	}
}

// Inc adds one to counter i.
func (t *Table) Inc(i int) {
	if t == nil || i < 0 || i >= len(t.counters) {
		return
	}
	atomic.AddUint64(&t.counters[i].value, 1)
}

// Value loads counter i.
func (t *Table) Value(i int) uint64 {
	if t == nil || i < 0 || i >= len(t.counters) {
		return 0
	}
	return atomic.LoadUint64(&t.counters[i].value)
}

// Observe records d in histogram h.
func (t *Table) Observe(h int, d time.Duration) {
	if t == nil || h < 0 || h >= len(t.histograms) {
		return
	}
	atomic.AddUint64(&t.histograms[h].buckets[BucketIndex(d)], 1)
}

// Buckets returns a non-cumulative copy of histogram h.
func (t *Table) Buckets(h int) []uint64 {
	out := make([]uint64, BucketCount)
	if t == nil || h < 0 || h >= len(t.histograms) {
		return out
	}
	for i := range out {
		out[i] = atomic.LoadUint64(&t.histograms[h].buckets[i])
	}
	return out
}

// BucketIndex maps a latency onto the bucket bounds
// 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, +Inf.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
