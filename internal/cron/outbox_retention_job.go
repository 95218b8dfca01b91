package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMaxAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxPruner is the slice of outbox.Repository the retention job uses.
type OutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
	Pending(ctx context.Context) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository OutboxPruner
	// Retention defaults to 30 days.
	Retention time.Duration
	// MaxAttempts matches the relay's give-up threshold so dead-lettered rows age out too.
	MaxAttempts int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        OutboxPruner
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewOutboxRetentionJob deletes outbox rows that were published or exhausted
// their attempts before the retention window.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case p.DB == nil:
		return nil, errors.New("outbox retention: db required")
	case p.Repository == nil:
		return nil, errors.New("outbox retention: repository required")
	}
	job := &outboxRetentionJob{
		logg:        p.Logger,
		db:          p.DB,
		repo:        p.Repository,
		retention:   p.Retention,
		maxAttempts: p.MaxAttempts,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.maxAttempts <= 0 {
		job.maxAttempts = defaultOutboxMaxAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pruned, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.maxAttempts)
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	ctx = j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "pruned": pruned})
	backlog, err := j.repo.Pending(ctx)
	if err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "cron.outbox_backlog_unknown")
	} else {
		ctx = j.logg.WithField(ctx, "backlog", backlog)
	}
	j.logg.Info(ctx, "cron.outbox_pruned")
	return nil
}
