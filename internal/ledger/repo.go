package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Repository manages persistence for ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	ListBySettlementID(ctx context.Context, settlementID uuid.UUID) ([]models.LedgerEvent, error)
	ListBySellerID(ctx context.Context, sellerID uuid.UUID) ([]models.LedgerEvent, error)
	CountBySettlementAndType(ctx context.Context, settlementID uuid.UUID, eventType enums.LedgerEventType) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListBySettlementID(ctx context.Context, settlementID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListBySellerID(ctx context.Context, sellerID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) CountBySettlementAndType(ctx context.Context, settlementID uuid.UUID, eventType enums.LedgerEventType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("settlement_id = ? AND type = ?", settlementID, eventType).
		Count(&count).Error
	return count, err
}
