package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestTableCountsConcurrently(t *testing.T) {
	tb := NewTable(2, 1)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tb.Inc(1)
			}
		}()
	}
	wg.Wait()

	if got := tb.Value(1); got != 3200 {
		t.Fatalf("expected 3200, got %d", got)
	}
	if got := tb.Value(0); got != 0 {
		t.Fatalf("untouched counter = %d", got)
	}
	tb.Inc(5)
	if tb.Value(5) != 0 {
		t.Fatal("out of range index must be ignored")
	}
}

func TestBucketIndex(t *testing.T) {
	cases := map[time.Duration]int{
		time.Millisecond:       0,
		5 * time.Millisecond:   0,
		6 * time.Millisecond:   1,
		25 * time.Millisecond:  2,
		100 * time.Millisecond: 4,
		499 * time.Millisecond: 6,
		2 * time.Second:        7,
	}
	for d, want := range cases {
		if got := BucketIndex(d); got != want {
			t.Errorf("BucketIndex(%s) = %d, want %d", d, got, want)
		}
	}
}

func TestObserve(t *testing.T) {
	tb := NewTable(0, 1)
	tb.Observe(0, 2*time.Millisecond)
	tb.Observe(0, time.Second)
	b := tb.Buckets(0)
	if b[0] != 1 || b[7] != 1 {
		t.Fatalf("unexpected buckets %v", b)
	}
}
