package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corporatepranks/storefront-backend/api/controllers"
	webhookcontrollers "github.com/corporatepranks/storefront-backend/api/controllers/webhooks"
	"github.com/corporatepranks/storefront-backend/api/middleware"
	"github.com/corporatepranks/storefront-backend/internal/cart"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	"github.com/corporatepranks/storefront-backend/internal/products"
	"github.com/corporatepranks/storefront-backend/internal/webhooks"
	paypalwebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/paypal"
	squarewebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/square"
	stripewebhook "github.com/corporatepranks/storefront-backend/internal/webhooks/stripe"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/paypal"
	"github.com/corporatepranks/storefront-backend/pkg/square"
	"github.com/corporatepranks/storefront-backend/pkg/stripe"
)

// KeyValueStore backs request idempotency and rate limiting. *pkg/redis.Client satisfies it.
type KeyValueStore interface {
	middleware.ReplayStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies is everything the API router mounts. Optional providers and
// their webhooks are skipped when nil.
type Dependencies struct {
	Config  *config.Config
	Logger  *logger.Logger
	Store   KeyValueStore
	Pingers map[string]controllers.Pinger
	Metrics http.Handler

	Checkout controllers.CheckoutService
	Carts    cart.Service
	Drafts   draft.Store
	Products products.Service
	Orders   controllers.OrderAdmin
	Uploads  controllers.Uploader

	PayPal        *paypal.Client
	PayPalWebhook *paypalwebhook.Service
	PayPalGuard   *webhooks.IdempotencyGuard

	Stripe        *stripe.Client
	StripeWebhook *stripewebhook.Service
	StripeGuard   *webhooks.IdempotencyGuard

	Square        *square.Client
	SquareWebhook *squarewebhook.Service
	SquareGuard   *webhooks.IdempotencyGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	paymentLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:       "checkout",
		Window:     cfg.RateLimit.Window,
		IPLimit:    cfg.RateLimit.IPLimit,
		OwnerLimit: cfg.RateLimit.OwnerLimit,
	}, rateLimiter(deps.Store), logg)
	paymentReplay := middleware.Idempotency(idempotencyStore(deps.Store), middleware.PaymentIdempotency, logg)
	defaultReplay := middleware.Idempotency(idempotencyStore(deps.Store), middleware.DefaultIdempotency, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.Stripe != nil && deps.StripeWebhook != nil && deps.StripeGuard != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.Stripe, deps.StripeGuard, logg))
		}
		if deps.PayPal != nil && deps.PayPalWebhook != nil && deps.PayPalGuard != nil {
			r.Post("/paypal", webhookcontrollers.PayPalWebhook(deps.PayPalWebhook, deps.PayPal, deps.PayPalGuard, logg))
		}
		if deps.Square != nil && deps.SquareWebhook != nil && deps.SquareGuard != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareWebhook, deps.Square, deps.SquareGuard, logg))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Get("/products", controllers.ProductList(deps.Products, logg))
			r.Get("/products/{slug}", controllers.ProductDetail(deps.Products, logg))
			r.Get("/payments/paypal/client-id", controllers.PayPalClientID(publicKey(deps.PayPal), logg))

			r.Route("/drafts/{funnel}", func(r chi.Router) {
				r.Get("/", controllers.DraftFetch(deps.Drafts, logg))
				r.Put("/", controllers.DraftSave(deps.Drafts, logg))
				r.Delete("/", controllers.DraftClear(deps.Drafts, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.With(paymentLimit, defaultReplay).Post("/", controllers.CheckoutStart(deps.Checkout, logg))
				r.Route("/{checkoutID}", func(r chi.Router) {
					r.Get("/", controllers.CheckoutGet(deps.Checkout, logg))
					r.Put("/form", controllers.CheckoutUpdateForm(deps.Checkout, logg))
					r.With(paymentLimit).Post("/session", controllers.CheckoutPrepareSession(deps.Checkout, logg))
					r.Post("/element-ready", controllers.CheckoutElementReady(deps.Checkout, logg))
					r.With(paymentLimit).Post("/orders", controllers.CheckoutCreateOrder(deps.Checkout, logg))
					r.With(paymentLimit, paymentReplay).Post("/submit", controllers.CheckoutSubmit(deps.Checkout, logg))
					r.Post("/cancel", controllers.CheckoutCancel(deps.Checkout, logg))
					r.Post("/error", controllers.CheckoutReportError(deps.Checkout, logg))
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(deps.Carts, logg))
				r.Delete("/", controllers.CartClear(deps.Carts, logg))
				r.With(defaultReplay).Post("/items", controllers.CartAddItem(deps.Carts, logg))
				r.Patch("/items/{itemID}", controllers.CartSetQuantity(deps.Carts, logg))
				r.Delete("/items/{itemID}", controllers.CartRemoveItem(deps.Carts, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(string(enums.ProfileRoleAdmin), logg))
				r.Get("/orders/{kind}", controllers.AdminOrderList(deps.Orders, logg))
				r.With(defaultReplay).Patch("/orders/{kind}/{orderID}/status", controllers.AdminOrderUpdateStatus(deps.Orders, logg))
				r.Post("/uploads", controllers.AdminUpload(deps.Uploads, int64(cfg.GCS.MaxUploadMB)<<20, logg))
			})
		})
	})

	return r
}

func idempotencyStore(s KeyValueStore) middleware.ReplayStore {
	if s == nil {
		return nil
	}
	return s
}

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func rateLimiter(s KeyValueStore) windowLimiter {
	if s == nil {
		return nil
	}
	return s
}

func publicKey(c *paypal.Client) controllers.PublicKeySource {
	if c == nil {
		return nil
	}
	return c
}
