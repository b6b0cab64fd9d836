package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

const (
	defaultNotificationRetentionDays = 30
	defaultOutboxRetention           = 30 * 24 * time.Hour
	defaultDLQRetention              = 90 * 24 * time.Hour
	retentionJobEvery                = 24 * time.Hour
)

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsCleanupRepo
	// Retention is in days. Unread notifications are never purged.
	Retention int
}

// NewNotificationCleanupJob purges read notifications past the retention window.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("notifications repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = defaultNotificationRetentionDays
	}
	return &purgeJob{
		name:      "notification-cleanup",
		logg:      params.Logger,
		retention: time.Duration(days) * 24 * time.Hour,
		now:       time.Now,
		purge: func(ctx context.Context, cutoff time.Time) (int64, error) {
			var deleted int64
			err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
				rows, err := params.Repository.DeleteReadBefore(ctx, tx, cutoff)
				deleted = rows
				return err
			})
			return deleted, err
		},
	}, nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	Retention  time.Duration
	// DLQ is optional. When set, parked events older than DLQRetention are
	// dropped along with their outbox rows.
	DLQ          dlqRetentionRepo
	DLQRetention time.Duration
}

// NewOutboxRetentionJob purges published outbox rows. Pending rows are never
// touched regardless of age; parked rows go only with their DLQ entry.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	purge := params.Repository.DeletePublishedBefore
	if params.DLQ != nil {
		dlqRetention := params.DLQRetention
		if dlqRetention <= 0 {
			dlqRetention = defaultDLQRetention
		}
		published := purge
		purge = func(ctx context.Context, cutoff time.Time) (int64, error) {
			deleted, err := published(ctx, cutoff)
			if err != nil {
				return deleted, err
			}
			// cutoff is now minus retention; shift it to the DLQ window.
			parked, err := params.DLQ.DeleteFailedBefore(ctx, cutoff.Add(retention-dlqRetention))
			return deleted + parked, err
		}
	}
	return &purgeJob{
		name:      "outbox-retention",
		logg:      params.Logger,
		retention: retention,
		now:       time.Now,
		purge:     purge,
	}, nil
}

// purgeJob deletes rows older than now minus retention once a day.
type purgeJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	now       func() time.Time
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Every() time.Duration { return retentionJobEvery }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention purge complete")
	return nil
}
