package cron

import (
	"context"
	"fmt"

	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type checkoutSweeper interface {
	Sweep(ctx context.Context) int
}

type CheckoutSweepJobParams struct {
	Logger   *logger.Logger
	Checkout checkoutSweeper
}

// NewCheckoutSweepJob evicts idle checkout instances. It runs inside the API
// process that owns the instances, under a LocalLock.
func NewCheckoutSweepJob(params CheckoutSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &checkoutSweepJob{logg: params.Logger, checkout: params.Checkout}, nil
}

type checkoutSweepJob struct {
	logg     *logger.Logger
	checkout checkoutSweeper
}

func (j *checkoutSweepJob) Name() string { return "checkout-sweep" }

func (j *checkoutSweepJob) Run(ctx context.Context) error {
	if dropped := j.checkout.Sweep(ctx); dropped > 0 {
		j.logg.Info(j.logg.WithField(ctx, "instances_dropped", dropped), "idle checkouts swept")
	}
	return nil
}
