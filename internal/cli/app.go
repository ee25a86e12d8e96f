package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/rollcall/internal/config"
	"github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/memory"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/redis"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/sqlite"
)

// app is the wired dependency graph shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db     *sql.DB
	writer *db.Worker
	redis  *goredis.Client

	adapter     *ledger.Adapter
	events      store.DecisionEventStore
	jobs        store.JobStore
	registry    *service.DeviceRegistry
	tracker     *service.DailyDeviceTracker
	attendance  *service.AttendanceService
	roster      *service.RosterService
	cleanup     *service.CleanupJobs
	maintenance *service.MaintenanceService
}

// newApp opens the database and builds every service. Close releases what
// it opened.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	conn, err := db.Open(ctx, db.Config{Path: cfg.DB.Path, Env: cfg.Server.Env})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: conn, writer: db.NewWorker(conn)}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Dev.SeedRoster {
		n, err := db.SeedRoster(ctx, a.db, db.DevRoster)
		if err != nil {
			return fmt.Errorf("seed roster: %w", err)
		}
		if n > 0 {
			a.logger.Info("dev roster seeded", "cells", n)
		}
	}

	adapter, err := ledger.NewAdapter(sqlite.NewLedger(a.db, a.writer), ledger.Config{
		FirstWeekColumn: cfg.Ledger.FirstWeekColumn,
		HeaderRows:      cfg.Ledger.HeaderRows,
		CacheTTL:        cfg.Ledger.CacheTTL,
		MinCallInterval: cfg.Ledger.MinCallInterval,
		Retry: ledger.RetryConfig{
			InitialInterval: cfg.Ledger.RetryInitial,
			MaxInterval:     cfg.Ledger.RetryMax,
			MaxAttempts:     cfg.Ledger.RetryAttempts,
		},
		MaskIP: cfg.Ledger.MaskIP,
	}, a.logger)
	if err != nil {
		return err
	}
	a.adapter = adapter

	policy, err := service.ParseAmbiguousPolicy(cfg.Device.AmbiguousPolicy)
	if err != nil {
		return err
	}
	loc, err := cfg.TimeLocation()
	if err != nil {
		return err
	}

	daily, err := a.dailyStore(ctx)
	if err != nil {
		return err
	}

	a.events = sqlite.NewDecisionEventStore(a.db, a.writer)
	a.jobs = sqlite.NewJobStore(a.db, a.writer)
	a.registry = service.NewDeviceRegistry(sqlite.NewDeviceStore(a.db, a.writer), policy, a.logger)
	a.tracker = service.NewDailyDeviceTracker(daily, adapter, service.TrackerConfig{Location: loc}, a.logger)
	a.attendance = service.NewAttendanceService(a.registry, a.tracker, adapter, a.events, a.logger)
	a.roster = service.NewRosterService(adapter, service.DefaultRosterTTL)
	a.cleanup = service.NewCleanupJobs(a.jobs, adapter, service.CleanupConfig{
		BatchSize: cfg.Jobs.BatchSize,
		TTL:       cfg.Jobs.TTL,
	}, a.logger)
	a.maintenance = service.NewMaintenanceService(a.registry, a.tracker, a.logger)
	return nil
}

// dailyStore picks redis when an address is configured, process memory
// otherwise.
func (a *app) dailyStore(ctx context.Context) (store.DailyDeviceStore, error) {
	if a.cfg.Redis.Addr == "" {
		return memory.NewDailyDeviceStore(), nil
	}
	a.redis = goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.logger.Info("daily device records in redis", "addr", a.cfg.Redis.Addr)
	return redis.NewDailyDeviceStore(a.redis, "", 0), nil
}

func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.writer != nil {
		a.writer.Close()
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
