package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/identity/memstore"
)

type chainState struct {
	mu      sync.Mutex
	refresh string
}

func main() {
	var (
		chains      = flag.Int("chains", 200, "number of logins to seed (one refresh chain each)")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate, refresh)")
		opsPerSec   = flag.Float64("rate", 0, "ops/sec cap per phase; 0 means unpaced")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *chains <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "chains, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := dialRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(ctx, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]chainState, *chains)
	var access []string
	fmt.Printf("seeding %d logins...\n", *chains)
	startSeed := time.Now()
	for i := range states {
		res, err := engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoAdminEmail, memstore.DemoAdminPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].refresh = res.RefreshToken
		access = append(access, res.AccessToken)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validate := runPhase(ctx, *ops, *concurrency, *opsPerSec, func(r *rand.Rand) error {
		_, err := engine.Validate(ctx, access[r.Intn(len(access))])
		return err
	})
	refresh := runPhase(ctx, *ops, *concurrency, *opsPerSec, func(r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		res, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.refresh = res.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validate)
	printStats("refresh", refresh)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: refresh_success=%d refresh_reuse=%d validate_success=%d\n",
		snap.Counters[tenantauth.MetricRefreshSuccess],
		snap.Counters[tenantauth.MetricRefreshReuseDetected],
		snap.Counters[tenantauth.MetricValidateSuccess],
	)
}

func dialRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(ctx context.Context, client redis.UniversalClient) (*tenantauth.Engine, error) {
	cfg := tenantauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-loadtest-secret-0")
	cfg.JWT.KeyID = "loadtest"
	cfg.RateLimit.Enabled = false
	cfg.Password.Memory = 19 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memstore.New()
	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithLogger(log).
		WithRedis(client).
		WithIdentityStore(store).
		Build()
	if err != nil {
		return nil, err
	}
	if _, err := memstore.SeedDemo(ctx, store, engine.HashPassword); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

// runPhase runs op ops times across concurrency workers. A positive
// opsPerSec paces the whole phase through one shared limiter.
func runPhase(ctx context.Context, ops, concurrency int, opsPerSec float64, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opsPerSec), concurrency)
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
