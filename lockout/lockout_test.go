package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	tr, err := NewTracker(NewRedisStore(rdb, "ta"), cfg)
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	tr.WithClock(func() time.Time { return now })
	return tr, mr, &now
}

func TestLocksAtThreshold(t *testing.T) {
	tr, _, now := newTestTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		st, err := tr.RecordFailure(ctx, "t1", "u1")
		if err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
		if st.FailedCount != i {
			t.Fatalf("attempt %d: count=%d", i, st.FailedCount)
		}
		if locked := st.Locked(*now); locked != (i == 5) {
			t.Fatalf("attempt %d: locked=%v", i, locked)
		}
	}

	locked, err := tr.IsLocked(ctx, "t1", "u1")
	if err != nil || !locked {
		t.Fatalf("expected locked, got %v err=%v", locked, err)
	}

	// Other tenant with the same user id is independent.
	if locked, _ := tr.IsLocked(ctx, "t2", "u1"); locked {
		t.Fatal("lock leaked across tenants")
	}
}

func TestFailuresWhileLockedDoNotExtend(t *testing.T) {
	tr, _, now := newTestTracker(t, DefaultConfig())
	ctx := context.Background()

	var first State
	for i := 0; i < 5; i++ {
		first, _ = tr.RecordFailure(ctx, "t1", "u1")
	}
	*now = now.Add(time.Minute)
	st, err := tr.RecordFailure(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !st.LockedUntil.Equal(first.LockedUntil) || st.FailedCount != 5 {
		t.Fatalf("state changed while locked: %+v vs %+v", st, first)
	}
}

func TestLockExpiresAndRearms(t *testing.T) {
	tr, mr, now := newTestTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = tr.RecordFailure(ctx, "t1", "u1")
	}
	*now = now.Add(16 * time.Minute)
	mr.FastForward(16 * time.Minute)

	locked, err := tr.IsLocked(ctx, "t1", "u1")
	if err != nil || locked {
		t.Fatalf("expected lock to expire, got %v err=%v", locked, err)
	}

	st, err := tr.RecordFailure(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !st.Locked(*now) {
		t.Fatal("one failure after an expired lock must lock again")
	}
}

func TestSuccessResets(t *testing.T) {
	tr, _, _ := newTestTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = tr.RecordFailure(ctx, "t1", "u1")
	}
	if err := tr.RecordSuccess(ctx, "t1", "u1"); err != nil {
		t.Fatalf("record success: %v", err)
	}
	st, err := tr.State(ctx, "t1", "u1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.FailedCount != 0 || !st.LockedUntil.IsZero() {
		t.Fatalf("expected reset state, got %+v", st)
	}
}

func TestFailurePolicy(t *testing.T) {
	ctx := context.Background()

	closed, mr, now := newTestTracker(t, DefaultConfig())
	mr.Close()
	locked, err := closed.IsLocked(ctx, "t1", "u1")
	if !errors.Is(err, ErrUnavailable) || !locked {
		t.Fatalf("fail closed: locked=%v err=%v", locked, err)
	}
	st, err := closed.RecordFailure(ctx, "t1", "u1")
	if !errors.Is(err, ErrUnavailable) || !st.Locked(*now) {
		t.Fatalf("fail closed record: %+v err=%v", st, err)
	}

	cfg := DefaultConfig()
	cfg.FailurePolicy = Retryable
	retry, mr2, _ := newTestTracker(t, cfg)
	mr2.Close()
	locked, err = retry.IsLocked(ctx, "t1", "u1")
	if !errors.Is(err, ErrUnavailable) || locked {
		t.Fatalf("retryable: locked=%v err=%v", locked, err)
	}
}

func TestDisabledTrackerIsNoop(t *testing.T) {
	tr, err := NewTracker(nil, Config{})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	st, err := tr.RecordFailure(context.Background(), "t1", "u1")
	if err != nil || st.FailedCount != 0 {
		t.Fatalf("expected no-op, got %+v err=%v", st, err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []Config{
		{Enabled: true, Threshold: 0, Duration: time.Minute, FailurePolicy: FailClosed},
		{Enabled: true, Threshold: 3, Duration: 0, FailurePolicy: FailClosed},
		{Enabled: true, Threshold: 3, Duration: time.Minute, FailurePolicy: "open"},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
