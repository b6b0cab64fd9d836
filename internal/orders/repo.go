package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order row and then its items in submission order.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Items) == 0 {
		return nil
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(&order.Items).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", orderItemsByPosition).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderForUpdate locks the order row so transitions on one order apply
// and append history in acceptance order.
func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

type listQuery struct {
	UserID         *uuid.UUID
	SellerID       *uuid.UUID
	IncludeDeleted bool
	Status         *enums.OrderStatus
	From           *time.Time
	To             *time.Time
	Limit          int
	Cursor         *pagination.Cursor
}

// ListOrders returns up to LimitWithBuffer orders, newest first.
func (r *repository) ListOrders(ctx context.Context, query listQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if query.UserID != nil {
		q = q.Where("orders.user_id = ?", *query.UserID)
	}
	if query.SellerID != nil {
		q = q.Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.seller_id = ?)", *query.SellerID)
	}
	if !query.IncludeDeleted {
		q = q.Where("orders.is_deleted = ?", false)
	}
	if query.Status != nil {
		q = q.Where("orders.status = ?", *query.Status)
	}
	if query.From != nil {
		q = q.Where("orders.created_at >= ?", *query.From)
	}
	if query.To != nil {
		q = q.Where("orders.created_at <= ?", *query.To)
	}
	if query.Cursor != nil {
		q = q.Where("(orders.created_at < ?) OR (orders.created_at = ? AND orders.id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var orders []models.Order
	err := q.Preload("Items", orderItemsByPosition).
		Order("orders.created_at DESC, orders.id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&orders).Error
	return orders, err
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

// MarkStockRestored flips the restore guard. It reports false when the item
// was already restored, so callers never return stock twice.
func (r *repository) MarkStockRestored(ctx context.Context, itemID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND stock_restored = ?", itemID, false).
		UpdateColumn("stock_restored", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetInvoice records invoice metadata once. It reports false when an invoice
// already exists.
func (r *repository) SetInvoice(ctx context.Context, orderID uuid.UUID, number, url string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND invoice_number IS NULL", orderID).
		UpdateColumns(map[string]any{
			"invoice_number":       number,
			"invoice_url":          url,
			"invoice_generated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type statsQuery struct {
	SellerID *uuid.UUID
	From     time.Time
	To       *time.Time
}

type statsRow struct {
	OrderID    uuid.UUID          `gorm:"column:order_id"`
	Status     enums.OrderStatus  `gorm:"column:status"`
	ItemStatus *enums.OrderStatus `gorm:"column:item_status"`
	Amount     decimal.Decimal    `gorm:"column:amount"`
	CreatedAt  time.Time          `gorm:"column:created_at"`
}

// StatsRows returns one row per order, or one row per seller item when the
// query is scoped to a seller. Aggregation happens in the service so the same
// code runs on postgres and sqlite.
func (r *repository) StatsRows(ctx context.Context, query statsQuery) ([]statsRow, error) {
	var q *gorm.DB
	if query.SellerID != nil {
		q = r.db.WithContext(ctx).
			Table("order_items").
			Select("orders.id AS order_id, orders.status AS status, order_items.status AS item_status, order_items.seller_amount AS amount, orders.created_at AS created_at").
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("order_items.seller_id = ?", *query.SellerID)
	} else {
		q = r.db.WithContext(ctx).
			Table("orders").
			Select("orders.id AS order_id, orders.status AS status, orders.total AS amount, orders.created_at AS created_at")
	}
	q = q.Where("orders.created_at >= ?", query.From)
	if query.To != nil {
		q = q.Where("orders.created_at <= ?", *query.To)
	}

	var rows []statsRow
	err := q.Order("orders.created_at ASC").Scan(&rows).Error
	return rows, err
}

// ArchiveBefore soft-deletes orders created before cutoff whose status is in
// statuses. Settlement flags are untouched.
func (r *repository) ArchiveBefore(ctx context.Context, cutoff time.Time, statuses []enums.OrderStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("is_deleted = ? AND status IN ? AND created_at < ?", false, statuses, cutoff).
		UpdateColumn("is_deleted", true)
	return result.RowsAffected, result.Error
}

func orderItemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("order_items.position ASC")
}
