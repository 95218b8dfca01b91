package cron

import (
	"context"
	"fmt"

	"github.com/corporatepranks/storefront-backend/internal/reconcile"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type capturedRetrier interface {
	RetryCaptured(ctx context.Context) (reconcile.Summary, error)
}

type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler capturedRetrier
}

// NewPaymentReconcileJob retries order writes for sessions the provider
// captured but the checkout failed to record.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &paymentReconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	reconciler capturedRetrier
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.RetryCaptured(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sessions_scanned": summary.Scanned,
		"orders_recorded":  summary.Recorded,
		"sessions_failed":  summary.Failed,
	})
	if err != nil {
		return fmt.Errorf("payment reconcile: %w", err)
	}
	if summary.Scanned > 0 {
		j.logg.Info(logCtx, "captured sessions reconciled")
	}
	return nil
}
