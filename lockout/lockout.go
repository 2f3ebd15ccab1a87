package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps lockout backend failures.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Policy selects how backend errors are reported.
type Policy string

const (
	// FailClosed treats a backend error as a lock.
	FailClosed Policy = "fail_closed"
	// Retryable surfaces backend errors without locking.
	Retryable Policy = "retryable"
)

// State is the per-user lockout state.
type State struct {
	FailedCount int
	LockedUntil time.Time
}

// Locked reports whether the lock is in force at now.
func (s State) Locked(now time.Time) bool {
	return now.Before(s.LockedUntil)
}

// Store persists lockout state. RecordFailure must be atomic per user.
type Store interface {
	// RecordFailure increments the failure count. When the count reaches
	// threshold it sets LockedUntil to now+lockFor and clamps the count to
	// threshold. Failures recorded while locked leave the state unchanged.
	RecordFailure(ctx context.Context, tenantID, userID string, threshold int, lockFor time.Duration, now time.Time) (State, error)
	Reset(ctx context.Context, tenantID, userID string) error
	Load(ctx context.Context, tenantID, userID string) (State, error)
}

// Config holds the lockout policy.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Threshold     int           `yaml:"threshold"`
	Duration      time.Duration `yaml:"duration"`
	FailurePolicy Policy        `yaml:"failure_policy"`
}

// DefaultConfig returns 5 failures, 15 minutes, fail closed.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Threshold:     5,
		Duration:      15 * time.Minute,
		FailurePolicy: FailClosed,
	}
}

// Validate checks the policy values.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if c.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	switch c.FailurePolicy {
	case FailClosed, Retryable:
	default:
		return fmt.Errorf("unknown lockout failure policy %q", c.FailurePolicy)
	}
	return nil
}

// Tracker applies a Config over a Store.
type Tracker struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewTracker validates cfg and returns a tracker. A disabled config yields
// a tracker whose methods are no-ops.
func NewTracker(store Store, cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Enabled && store == nil {
		return nil, errors.New("lockout store is required")
	}
	return &Tracker{store: store, config: cfg, now: time.Now}, nil
}

// WithClock replaces the tracker clock. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Policy returns the configured failure policy.
func (t *Tracker) Policy() Policy { return t.config.FailurePolicy }

// IsLocked reports whether the user is locked now. On a backend error the
// returned bool follows the failure policy and the error is returned too.
func (t *Tracker) IsLocked(ctx context.Context, tenantID, userID string) (bool, error) {
	if t == nil || !t.config.Enabled {
		return false, nil
	}
	state, err := t.store.Load(ctx, tenantID, userID)
	if err != nil {
		return t.config.FailurePolicy == FailClosed, wrap(err)
	}
	return state.Locked(t.now()), nil
}

// RecordFailure counts one failed attempt. On a backend error the returned
// state is locked under FailClosed and zero under Retryable.
func (t *Tracker) RecordFailure(ctx context.Context, tenantID, userID string) (State, error) {
	if t == nil || !t.config.Enabled {
		return State{}, nil
	}
	now := t.now()
	state, err := t.store.RecordFailure(ctx, tenantID, userID, t.config.Threshold, t.config.Duration, now)
	if err != nil {
		if t.config.FailurePolicy == FailClosed {
			return State{FailedCount: t.config.Threshold, LockedUntil: now.Add(t.config.Duration)}, wrap(err)
		}
		return State{}, wrap(err)
	}
	return state, nil
}

// RecordSuccess clears the failure count and any lock.
func (t *Tracker) RecordSuccess(ctx context.Context, tenantID, userID string) error {
	if t == nil || !t.config.Enabled {
		return nil
	}
	if err := t.store.Reset(ctx, tenantID, userID); err != nil {
		return wrap(err)
	}
	return nil
}

// State loads the current state.
func (t *Tracker) State(ctx context.Context, tenantID, userID string) (State, error) {
	if t == nil || !t.config.Enabled {
		return State{}, nil
	}
	state, err := t.store.Load(ctx, tenantID, userID)
	if err != nil {
		return State{}, wrap(err)
	}
	return state, nil
}

func wrap(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
