package main

import (
	"context"
	"errors"
	"time"

	"github.com/corporatepranks/storefront-backend/internal/analytics/worker"
	"github.com/corporatepranks/storefront-backend/internal/analytics/writer"
	"github.com/corporatepranks/storefront-backend/internal/bootstrap"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/idempotency"
)

const flushTimeout = 10 * time.Second

// analytics-worker drains checkout purchase events into BigQuery.
func main() {
	boot := context.Background()
	rt, err := bootstrap.Start(boot, "analytics-worker", bootstrap.Redis|bootstrap.PubSub|bootstrap.BigQuery)
	if err != nil {
		bootstrap.Exit(boot, nil, "analytics worker cannot start", err)
	}
	logg, cfg := rt.Logger, rt.Config
	fail := func(msg string, err error) {
		rt.Close()
		bootstrap.Exit(boot, logg, msg, err)
	}

	if err := rt.PubSub.CheckSubscription(boot, cfg.PubSub.PurchaseSubscription); err != nil {
		fail("purchase subscription", err)
	}
	subscription := rt.PubSub.PurchaseSubscription()

	dedupe, err := idempotency.NewManager(rt.Redis, cfg.Eventing.AnalyticsIdempotency)
	if err != nil {
		fail("idempotency manager", err)
	}

	purchases, err := writer.New(boot, rt.BigQuery, writer.Config{PurchaseTable: cfg.BigQuery.PurchaseEventsTable})
	if err != nil {
		fail("purchase writer", err)
	}
	rt.Defer("purchase writer", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		return purchases.Flush(ctx)
	})

	service, err := worker.NewService(subscription, worker.HandlerFunc(purchases.InsertPurchase), dedupe, logg)
	if err != nil {
		fail("analytics worker", err)
	}

	ctx, stop := rt.SignalContext()
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"subscription": cfg.PubSub.PurchaseSubscription,
		"table":        cfg.BigQuery.PurchaseEventsTable,
	})
	logg.Info(ctx, "analytics worker ready")

	err = service.Run(ctx)
	rt.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Exit(ctx, logg, "analytics worker failed", err)
	}
	logg.Info(ctx, "analytics worker shut down gracefully")
}
