package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corporatepranks/storefront-backend/api/controllers"
	"github.com/corporatepranks/storefront-backend/api/routes"
	"github.com/corporatepranks/storefront-backend/internal/analytics"
	"github.com/corporatepranks/storefront-backend/internal/cart"
	"github.com/corporatepranks/storefront-backend/internal/checkout"
	"github.com/corporatepranks/storefront-backend/internal/cron"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/internal/payments"
	"github.com/corporatepranks/storefront-backend/internal/paymentsessions"
	"github.com/corporatepranks/storefront-backend/internal/products"
	"github.com/corporatepranks/storefront-backend/internal/profiles"
	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	"github.com/corporatepranks/storefront-backend/internal/webhooks"
	paypalwebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/paypal"
	squarewebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/square"
	stripewebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/stripe"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/metrics"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
	"github.com/corporatepranks/storefront-backend/pkg/pubsub"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
	"github.com/corporatepranks/storefront-backend/pkg/square"
	"github.com/corporatepranks/storefront-backend/pkg/storage/gcs"
	pkgstripe "github.com/corporatepranks/storefront-backend/pkg/stripe"
)

type application struct {
	deps    routes.Dependencies
	sweeper *cron.Service
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires the checkout graph. Payment providers whose credentials are
// absent are skipped; the flows they serve answer 503.
func build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, pubsubClient *pubsub.Client) (*application, error) {
	app := &application{}
	gormDB := dbClient.DB()

	checkoutMetrics := metrics.NewCheckout(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	productService, err := products.NewService(products.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	cartService, err := cart.NewService(cart.NewRepository(gormDB), productService)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	profileService, err := profiles.NewService(profiles.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("profile service: %w", err)
	}
	drafts, err := draftStore(ctx, cfg, redisClient, logg)
	if err != nil {
		return nil, fmt.Errorf("draft store: %w", err)
	}

	orderWriter, err := orders.NewWriter(orders.NewRepository(gormDB), dbClient, outbox.NewService(outbox.NewRepository(gormDB), logg), logg)
	if err != nil {
		return nil, fmt.Errorf("order writer: %w", err)
	}
	sessions := paymentsessions.NewRepository(gormDB)

	purchases, err := analytics.NewTopicPublisher(pubsubClient.PurchasePublisher())
	if err != nil {
		return nil, fmt.Errorf("purchase publisher: %w", err)
	}
	tracker, err := analytics.NewTracker(redisClient, purchases, logg, analytics.TrackerOptions{
		GuardTTL:       cfg.Eventing.PurchaseEventTTL,
		PublishTimeout: cfg.PubSub.PublishTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("purchase tracker: %w", err)
	}
	app.closers = append(app.closers, purchases.Stop, tracker.Wait)

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Sessions:  sessions,
		Orders:    orderWriter,
		Tracker:   tracker,
		Logger:    logg,
		BatchSize: cfg.Cron.ReconcileBatchSize,
		MinAge:    cfg.Cron.ReconcileMinAge,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile service: %w", err)
	}

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   logg,
		Store:    redisClient,
		Metrics:  promhttp.Handler(),
		Carts:    cartService,
		Drafts:   drafts,
		Products: productService,
		Orders:   orderWriter,
		Pingers: map[string]controllers.Pinger{
			"db":     dbClient,
			"redis":  redisClient,
			"pubsub": pubsubClient,
		},
	}

	var stripeProvider, squareProvider, redirectProvider payments.Provider

	if stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "stripe disabled")
	} else {
		p, err := payments.NewStripeProvider(pkgstripe.NewPaymentIntents(stripeClient), logg)
		if err != nil {
			return nil, err
		}
		stripeProvider = payments.Instrument(p, checkoutMetrics)
		deps.Stripe = stripeClient
		if deps.StripeWebhook, err = stripewebhook.NewService(stripewebhook.ServiceParams{Recorder: reconciler, Logger: logg}); err != nil {
			return nil, err
		}
		if deps.StripeGuard, err = webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe"); err != nil {
			return nil, err
		}
	}

	if squareClient, err := square.NewClient(ctx, cfg.Square, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "square disabled")
	} else {
		p, err := payments.NewSquareProvider(squareClient)
		if err != nil {
			return nil, err
		}
		squareProvider = payments.Instrument(p, checkoutMetrics)
		deps.Square = squareClient
		if deps.SquareWebhook, err = squarewebhook.NewService(squarewebhook.ServiceParams{Recorder: reconciler, Logger: logg}); err != nil {
			return nil, err
		}
		if deps.SquareGuard, err = webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "square"); err != nil {
			return nil, err
		}
	}

	if paypalClient, err := paypal.NewClient(ctx, cfg.PayPal, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "paypal disabled")
	} else {
		p, err := payments.NewPayPalProvider(paypalClient)
		if err != nil {
			return nil, err
		}
		redirectProvider = payments.Instrument(p, checkoutMetrics)
		deps.PayPal = paypalClient
		if deps.PayPalWebhook, err = paypalwebhook.NewService(paypalwebhook.ServiceParams{Recorder: reconciler, Logger: logg}); err != nil {
			return nil, err
		}
		if deps.PayPalGuard, err = webhooks.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "paypal"); err != nil {
			return nil, err
		}
	}

	hosted, err := payments.SelectHosted(strings.ToLower(strings.TrimSpace(cfg.Checkout.HostedProvider)), stripeProvider, squareProvider)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "hosted checkout disabled")
		hosted = nil
	}

	if gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "admin uploads disabled")
	} else {
		deps.Uploads = gcsClient
		deps.Pingers["gcs"] = gcsClient
		app.closers = append(app.closers, func() { _ = gcsClient.Close() })
	}

	svc, err := checkout.NewService(checkout.ServiceParams{
		Config:    cfg.Checkout,
		Registry:  checkout.NewRegistry(),
		Drafts:    drafts,
		Carts:     cartService,
		Products:  productService,
		Buyers:    profileService,
		Providers: payments.Providers{Hosted: hosted, Redirect: redirectProvider},
		Sessions:  sessions,
		Orders:    orderWriter,
		Tracker:   tracker,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	deps.Checkout = svc

	sweepJob, err := cron.NewCheckoutSweepJob(cron.CheckoutSweepJobParams{Logger: logg, Checkout: svc})
	if err != nil {
		return nil, err
	}
	jobs, err := cron.NewRegistry(sweepJob)
	if err != nil {
		return nil, err
	}
	app.sweeper, err = cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     cron.LocalLock{},
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout sweeper: %w", err)
	}

	app.deps = deps
	return app, nil
}

func draftStore(ctx context.Context, cfg *config.Config, kv redis.KeyValueStore, logg *logger.Logger) (draft.Store, error) {
	if cfg.FeatureFlags.MemoryDrafts && cfg.App.IsDev() {
		logg.Warn(ctx, "drafts kept in memory")
		return draft.NewMemoryStore(logg), nil
	}
	return draft.NewRedisStore(kv, logg)
}
