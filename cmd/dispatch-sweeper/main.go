package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/notifystore/api/controllers"
	"github.com/angelmondragon/notifystore/api/routes"
	"github.com/angelmondragon/notifystore/internal/cron"
	"github.com/angelmondragon/notifystore/internal/notifications"
	"github.com/angelmondragon/notifystore/pkg/config"
	"github.com/angelmondragon/notifystore/pkg/db"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/metrics"
	"github.com/angelmondragon/notifystore/pkg/migrate"
	"github.com/angelmondragon/notifystore/pkg/redis"
)

const (
	serviceName  = "dispatch-sweeper"
	sweepLockKey = "stale-claim-sweep"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "dispatch sweeper stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return err
	}
	manager, err := migrate.NewManager(sqlDB, dbClient.Dialect())
	if err != nil {
		return err
	}

	registerer := prometheus.DefaultRegisterer
	service, err := notifications.NewService(ctx, notifications.ServiceParams{
		DB:      dbClient.DB(),
		Schema:  manager,
		Logger:  logg,
		Metrics: metrics.NewDispatchMetrics(registerer),
		Policy:  notifications.PolicyFromConfig(cfg.Dispatch),
	})
	if err != nil {
		return err
	}

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"schema": controllers.PingFunc(func(ctx context.Context) error {
			return notifications.CheckSchema(ctx, manager)
		}),
	}

	var lock cron.Lock
	if cfg.Redis.Configured() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()

		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(sweepLockKey), cfg.Sweep.LockTTL)
		if err != nil {
			return err
		}
		readiness["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured; sweep lock is process local")
		lock = cron.NewLocalLock()
	}

	cronMetrics := metrics.NewCronJobMetrics(registerer)
	sweepJob, err := cron.NewStaleClaimSweepJob(cron.StaleClaimSweepJobParams{
		Logger:   logg,
		Releaser: service,
		Metrics:  cronMetrics,
	})
	if err != nil {
		return err
	}
	sweeper, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(sweepJob),
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Sweep.Interval,
		JobTimeout: cfg.Sweep.JobTimeout,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    ":" + cfg.Ops.Port,
		Handler: routes.NewRouter(cfg, logg, readiness, prometheus.DefaultGatherer, service),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := sweeper.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logg.Info(logg.WithField(groupCtx, "addr", server.Addr), "starting ops server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logg.Info(ctx, "dispatch sweeper started")
	if err := group.Wait(); err != nil {
		return err
	}
	logg.Info(ctx, "dispatch sweeper shutting down gracefully")
	return nil
}
