package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
)

// ErrInsufficientStock is returned when a conditional decrement matched no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository reads catalog rows and adjusts stock with conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindSellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error)
	FindSellerByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) FindSellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error) {
	out := make(map[uuid.UUID]models.Seller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Seller
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) FindSellerByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

// DecrementStock takes qty units and bumps sales_count in one statement. The
// stock check is part of the WHERE clause so concurrent orders serialize on
// the product row instead of racing a prior read.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"sales_count":    gorm.Expr("sales_count + ?", qty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// RestoreStock returns qty units. sales_count never goes below zero.
func (r *repository) RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
			"sales_count":    gorm.Expr("CASE WHEN sales_count >= ? THEN sales_count - ? ELSE 0 END", qty, qty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
