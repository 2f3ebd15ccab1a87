// Command authd serves the tenantauth HTTP API.
//
// Configuration comes from an optional YAML file (-config) layered over the
// defaults, then TENANTAUTH_* environment variables. With a database DSN the
// identity store is Postgres; without one an in-memory store seeded with the
// demo tenant is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/httpapi"
	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/identity/memstore"
	promexport "github.com/MrEthical07/tenantauth/metrics/export/prometheus"
	"github.com/MrEthical07/tenantauth/store/postgres"
)

const purgeInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := tenantauth.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := tenantauth.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("authd stopped")
	}
}

func run(cfg tenantauth.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}

	builder := tenantauth.New().WithConfig(cfg).WithLogger(log).WithRedis(rdb)

	var (
		admin identity.Admin
		pg    *postgres.Store
		err   error
	)
	if cfg.Database.DSN != "" {
		pg, err = postgres.Open(ctx, cfg.Database.DSN, postgres.PoolConfig{
			MaxOpen:     cfg.Database.MaxConnections,
			MaxIdle:     cfg.Database.MinConnections,
			MaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer pg.Close()

		if cfg.Database.AutoMigrate {
			applied, err := pg.Migrate(ctx)
			if err != nil {
				return err
			}
			for _, name := range applied {
				log.WithField("migration", name).Info("migration applied")
			}
		}

		builder = builder.WithIdentityStore(pg)
		switch cfg.Database.StateBackend {
		case "", "redis":
		case "postgres":
			builder = builder.WithLockoutStore(pg.Lockout()).WithSessionStore(pg.Sessions())
		default:
			return fmt.Errorf("unknown state backend %q", cfg.Database.StateBackend)
		}
		admin = pg
	} else {
		mem := memstore.New()
		builder = builder.WithIdentityStore(mem)
		admin = mem
		log.Warn("no database configured, using the in-memory identity store")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.Database.SeedDemo || cfg.Database.DSN == "" {
		if err := seedDemo(ctx, admin, engine, log); err != nil {
			return err
		}
	}
	logSecurityReport(log, engine.SecurityReport())

	if pg != nil && cfg.Database.StateBackend == "postgres" {
		go purgeSessions(ctx, pg.Sessions(), log)
	}

	opts := httpapi.Options{
		Logger:         log,
		TrustProxy:     cfg.HTTP.TrustProxy,
		LiveValidation: cfg.HTTP.LiveValidation,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.NewCollector(engine).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("authd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}

func seedDemo(ctx context.Context, admin identity.Admin, engine *tenantauth.Engine, log logrus.FieldLogger) error {
	demo, err := memstore.SeedDemo(ctx, admin, engine.HashPassword)
	if errors.Is(err, identity.ErrDuplicate) {
		log.Info("demo tenant already present")
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed demo: %w", err)
	}
	log.WithFields(logrus.Fields{
		"tenant": demo.Tenant.Code,
		"admin":  memstore.DemoAdminEmail,
		"user":   memstore.DemoUserEmail,
	}).Info("demo tenant seeded")
	return nil
}

func logSecurityReport(log logrus.FieldLogger, r tenantauth.SecurityReport) {
	log.WithFields(logrus.Fields{
		"alg":          r.SigningAlgorithm,
		"key_rotation": r.KeyRotationActive,
		"access_ttl":   r.AccessTTL.String(),
		"refresh_ttl":  r.RefreshTTL.String(),
		"lockout":      r.LockoutActive,
		"rate_limit":   r.RateLimitingActive,
		"permissions":  r.PermissionCodes,
	}).Info("security posture")
	for _, w := range r.Warnings {
		log.WithField("warning", w).Warn("security posture")
	}
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

func purgeSessions(ctx context.Context, sessions sessionPurger, log logrus.FieldLogger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := sessions.PurgeExpired(ctx, now)
			if err != nil {
				log.WithError(err).Warn("purge expired sessions")
				continue
			}
			if n > 0 {
				log.WithField("count", n).Debug("expired sessions purged")
			}
		}
	}
}
