package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
)

// DLQRepository stores events the publisher gave up on. A parked event keeps
// its outbox row, pinned at the attempt cap, until the DLQ entry expires.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx parks an event. Parking the same event twice keeps the first entry.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// DeleteFailedBefore drops DLQ entries parked before cutoff together with the
// outbox rows they shadow. It returns the number of DLQ entries removed.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := tx.Model(&models.OutboxDLQ{}).Select("event_id").Where("failed_at < ?", cutoff)
		if err := tx.Where("id IN (?) AND published_at IS NULL", expired).Delete(&models.OutboxEvent{}).Error; err != nil {
			return err
		}
		res := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
