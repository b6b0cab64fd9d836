package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
)

// ErrUsageExhausted is returned when the conditional usage increment matched no row.
var ErrUsageExhausted = errors.New("offer usage exhausted")

// Repository manages offers and their per-user usage ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Offer, error)
	FindUsage(ctx context.Context, offerID, userID uuid.UUID) (*models.OfferUsage, error)
	CountUserOrders(ctx context.Context, userID uuid.UUID) (int64, error)
	IncrementUsage(ctx context.Context, offerID uuid.UUID) error
	UpsertUsage(ctx context.Context, offerID, userID uuid.UUID, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an offers repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindUsage returns nil without error when the user never used the offer.
func (r *repository) FindUsage(ctx context.Context, offerID, userID uuid.UUID) (*models.OfferUsage, error) {
	var usage models.OfferUsage
	err := r.db.WithContext(ctx).
		Where("offer_id = ? AND user_id = ?", offerID, userID).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repository) CountUserOrders(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// IncrementUsage bumps usage_count only while the global cap allows it, so two
// orders racing for the last use cannot both win.
func (r *repository) IncrementUsage(ctx context.Context, offerID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND (usage_limit = ? OR usage_count < usage_limit)", offerID, models.UnlimitedUsage).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUsageExhausted
	}
	return nil
}

func (r *repository) UpsertUsage(ctx context.Context, offerID, userID uuid.UUID, now time.Time) error {
	usage := models.OfferUsage{
		ID:         uuid.New(),
		OfferID:    offerID,
		UserID:     userID,
		Count:      1,
		LastUsedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "offer_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":        gorm.Expr("offer_usages.count + 1"),
			"last_used_at": now,
		}),
	}).Create(&usage).Error
}
