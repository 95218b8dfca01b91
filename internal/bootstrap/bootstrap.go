// Package bootstrap loads configuration and opens the shared clients each
// binary needs, in a fixed order, and closes them in reverse.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/corporatepranks/storefront-backend/pkg/bigquery"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/migrate"
	"github.com/corporatepranks/storefront-backend/pkg/pubsub"
	"github.com/corporatepranks/storefront-backend/pkg/redis"
)

// Needs selects which clients Start opens.
type Needs uint8

const (
	DB Needs = 1 << iota
	Redis
	PubSub
	BigQuery
	// NoAutoMigrate skips the dev auto-migration for binaries that migrate themselves.
	NoAutoMigrate
)

func (n Needs) has(flag Needs) bool { return n&flag != 0 }

// Runtime is what a binary gets back from Start. Unrequested clients are nil.
type Runtime struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	PubSub   *pubsub.Client
	BigQuery *bigquery.Client

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Start reads .env when present, loads config for service and opens the
// requested clients. Dev environments get migrations applied on the way up.
// On error everything opened so far is closed.
func Start(ctx context.Context, service string, needs Needs) (rt *Runtime, err error) {
	logg := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Service.Kind = service

	rt = &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if needs.has(DB) {
		if rt.DB, err = db.New(ctx, cfg.DB, rt.Logger); err != nil {
			return rt, fmt.Errorf("database: %w", err)
		}
		rt.Defer("database", rt.DB.Close)
		if !needs.has(NoAutoMigrate) {
			if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
				return rt, fmt.Errorf("dev migrations: %w", err)
			}
		}
	}
	if needs.has(Redis) {
		if rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger); err != nil {
			return rt, fmt.Errorf("redis: %w", err)
		}
		rt.Defer("redis", rt.Redis.Close)
	}
	if needs.has(PubSub) {
		if rt.PubSub, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger); err != nil {
			return rt, fmt.Errorf("pubsub: %w", err)
		}
		rt.Defer("pubsub", rt.PubSub.Close)
	}
	if needs.has(BigQuery) {
		if rt.BigQuery, err = bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, rt.Logger); err != nil {
			return rt, fmt.Errorf("bigquery: %w", err)
		}
		rt.Defer("bigquery", rt.BigQuery.Close)
	}
	return rt, nil
}

// Defer registers fn to run on Close, after anything registered later.
func (r *Runtime) Defer(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, fn: fn})
}

func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			r.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	r.closers = nil
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the env and
// service kind as log fields.
func (r *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return r.Logger.WithFields(ctx, map[string]any{
		"env":         r.Config.App.Env,
		"serviceKind": r.Config.Service.Kind,
	}), stop
}

// Exit logs err and terminates the process. Deferred closers do not run.
func Exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{})
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
