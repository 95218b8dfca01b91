package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corporatepranks/storefront-backend/internal/analytics"
	"github.com/corporatepranks/storefront-backend/internal/bootstrap"
	"github.com/corporatepranks/storefront-backend/internal/cron"
	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/internal/paymentsessions"
	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/metrics"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/pubsub"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

const outboxRetentionInterval = time.Hour

// cron-worker reconciles stale payment sessions and prunes the outbox. Only
// the replica holding the redis lock runs a tick.
func main() {
	rt, err := bootstrap.Start(context.Background(), "cron-worker", bootstrap.DB|bootstrap.Redis|bootstrap.PubSub)
	if err != nil {
		bootstrap.Exit(context.Background(), nil, "cron worker cannot start", err)
	}
	logg, cfg := rt.Logger, rt.Config

	registry, cleanup, err := buildJobs(cfg, logg, rt.DB, rt.Redis, rt.PubSub)
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to build cron jobs", err)
	}
	rt.Defer("jobs", func() error { cleanup(); return nil })

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey("cron-worker", env), cfg.Cron.LockTTL)
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to create cron lock", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to create cron service", err)
	}

	ctx, stop := rt.SignalContext()
	defer stop()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Cron.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	rt.Defer("metrics server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logg.Info(ctx, "cron worker started")
	err = service.Run(ctx)
	rt.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Exit(ctx, logg, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

// buildJobs registers payment reconciliation every tick and outbox retention hourly.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, pubsubClient *pubsub.Client) (*cron.Registry, func(), error) {
	gormDB := dbClient.DB()

	writer, err := orders.NewWriter(orders.NewRepository(gormDB), dbClient, outbox.NewService(outbox.NewRepository(gormDB), logg), logg)
	if err != nil {
		return nil, nil, fmt.Errorf("order writer: %w", err)
	}
	purchases, err := analytics.NewTopicPublisher(pubsubClient.PurchasePublisher())
	if err != nil {
		return nil, nil, fmt.Errorf("purchase publisher: %w", err)
	}
	tracker, err := analytics.NewTracker(redisClient, purchases, logg, analytics.TrackerOptions{
		GuardTTL:       cfg.Eventing.PurchaseEventTTL,
		PublishTimeout: cfg.PubSub.PublishTimeout(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("purchase tracker: %w", err)
	}
	cleanup := func() {
		tracker.Wait()
		purchases.Stop()
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Sessions:  paymentsessions.NewRepository(gormDB),
		Orders:    writer,
		Tracker:   tracker,
		Logger:    logg,
		BatchSize: cfg.Cron.ReconcileBatchSize,
		MinAge:    cfg.Cron.ReconcileMinAge,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("reconcile service: %w", err)
	}

	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{Logger: logg, Reconciler: reconciler})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(gormDB),
		Retention:   cfg.Outbox.Retention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	registry, err := cron.NewRegistry(reconcileJob, cron.Every(retentionJob, outboxRetentionInterval))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return registry, cleanup, nil
}
