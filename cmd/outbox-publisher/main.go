package main

import (
	"context"
	"errors"

	"github.com/corporatepranks/storefront-backend/internal/bootstrap"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/outbox/registry"
)

// outbox-publisher relays committed outbox rows to Pub/Sub.
func main() {
	rt, err := bootstrap.Start(context.Background(), "outbox-publisher", bootstrap.DB|bootstrap.PubSub)
	if err != nil {
		bootstrap.Exit(context.Background(), nil, "outbox publisher cannot start", err)
	}
	logg := rt.Logger

	events, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to build event registry", err)
	}

	topics := &pubsubTopics{client: rt.PubSub}
	rt.Defer("topics", func() error { topics.Stop(); return nil })

	relay, err := NewRelay(RelayParams{
		Outbox:      rt.Config.Outbox,
		Logger:      logg,
		DB:          rt.DB,
		Events:      outbox.NewRepository(rt.DB.DB()),
		DeadLetters: outbox.NewDLQRepository(rt.DB.DB()),
		Registry:    events,
		Publisher:   topics,
	})
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to create outbox relay", err)
	}

	ctx, stop := rt.SignalContext()
	defer stop()
	ctx = logg.WithField(ctx, "topics", events.Topics())
	logg.Info(ctx, "outbox publisher started")

	err = relay.Run(ctx)
	rt.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Exit(ctx, logg, "outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher shut down gracefully")
}
