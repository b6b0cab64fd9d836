package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/settlements"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type penaltySweeper interface {
	ApplyPenalties(ctx context.Context) (returns.SweepResult, error)
}

type settlementSweeper interface {
	Sweep(ctx context.Context) (settlements.SweepResult, error)
}

type orderArchiver interface {
	ArchiveTerminal(ctx context.Context) (int64, error)
}

// NewPenaltySweepJob auto-approves returns whose evidence video went unreviewed.
// Metrics may be nil.
func NewPenaltySweepJob(logg *logger.Logger, sweeper penaltySweeper, m *metrics.CronJobMetrics) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("returns service required")
	}
	return &penaltySweepJob{logg: logg, sweeper: sweeper, metrics: m}, nil
}

type penaltySweepJob struct {
	logg    *logger.Logger
	sweeper penaltySweeper
	metrics *metrics.CronJobMetrics
}

func (j *penaltySweepJob) Name() string { return "return-penalty-sweep" }

func (j *penaltySweepJob) Every() time.Duration { return time.Hour }

func (j *penaltySweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.ApplyPenalties(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": result.Candidates,
		"penalized":  result.Penalized,
	}), "penalty sweep run")
	if err := absorbUnitFailures(ctx, j.logg, j.metrics, j.Name(), result.Candidates, err); err != nil {
		return fmt.Errorf("penalty sweep: %w", err)
	}
	return nil
}

// NewSettlementSweepJob batches aged deliveries into weekly seller settlements.
// Metrics may be nil.
func NewSettlementSweepJob(logg *logger.Logger, sweeper settlementSweeper, m *metrics.CronJobMetrics) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("settlements service required")
	}
	return &settlementSweepJob{logg: logg, sweeper: sweeper, metrics: m}, nil
}

type settlementSweepJob struct {
	logg    *logger.Logger
	sweeper settlementSweeper
	metrics *metrics.CronJobMetrics
}

func (j *settlementSweepJob) Name() string { return "settlement-sweep" }

func (j *settlementSweepJob) Every() time.Duration { return 7 * 24 * time.Hour }

func (j *settlementSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"sellers":     result.Sellers,
		"settlements": result.Settlements,
		"items":       result.Items,
	}), "settlement sweep run")
	if err := absorbUnitFailures(ctx, j.logg, j.metrics, j.Name(), result.Sellers, err); err != nil {
		return fmt.Errorf("settlement sweep: %w", err)
	}
	return nil
}

// NewOrderArchivalJob soft-deletes terminal orders past the archive window.
func NewOrderArchivalJob(logg *logger.Logger, archiver orderArchiver) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if archiver == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &orderArchivalJob{logg: logg, archiver: archiver}, nil
}

type orderArchivalJob struct {
	logg     *logger.Logger
	archiver orderArchiver
}

func (j *orderArchivalJob) Name() string { return "order-archival" }

func (j *orderArchivalJob) Every() time.Duration { return 24 * time.Hour }

func (j *orderArchivalJob) Run(ctx context.Context) error {
	archived, err := j.archiver.ArchiveTerminal(ctx)
	if err != nil {
		return fmt.Errorf("order archival: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_archived", archived), "order archival complete")
	return nil
}

// absorbUnitFailures keeps per-unit errors from failing a sweep that loaded its
// work. Those units are counted and retried on the next scheduled run; the lease
// is only given back when the sweep could not load anything (attempted == 0).
func absorbUnitFailures(ctx context.Context, logg *logger.Logger, m *metrics.CronJobMetrics, job string, attempted int, err error) error {
	if err == nil || attempted == 0 {
		return err
	}
	failed := len(multierr.Errors(err))
	m.AddUnitFailures(job, failed)
	logg.Warn(logg.WithFields(ctx, map[string]any{
		"attempted":    attempted,
		"failed_units": failed,
		"error":        err.Error(),
	}), "sweep finished with failed units, retrying next run")
	return nil
}
