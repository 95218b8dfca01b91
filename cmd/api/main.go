package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corporatepranks/storefront-backend/api/routes"
	"github.com/corporatepranks/storefront-backend/internal/bootstrap"
	"github.com/corporatepranks/storefront-backend/pkg/env"
)

const shutdownGrace = 15 * time.Second

func main() {
	rt, err := bootstrap.Start(context.Background(), "api", bootstrap.DB|bootstrap.Redis|bootstrap.PubSub)
	if err != nil {
		bootstrap.Exit(context.Background(), nil, "api cannot start", err)
	}
	logg, cfg := rt.Logger, rt.Config

	app, err := build(context.Background(), cfg, logg, rt.DB, rt.Redis, rt.PubSub)
	if err != nil {
		rt.Close()
		bootstrap.Exit(context.Background(), logg, "failed to wire api", err)
	}
	rt.Defer("application", func() error { app.close(); return nil })

	addr := ":" + env.Get("PORT", cfg.App.Port)
	instance := env.Get("DYNO", "local")

	ctx, stop := rt.SignalContext()
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"addr": addr, "instance": instance})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(app.deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := app.sweeper.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	rt.Close()
	if err != nil {
		bootstrap.Exit(ctx, logg, "api server stopped unexpectedly", err)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
