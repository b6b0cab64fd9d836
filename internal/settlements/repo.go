package settlements

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

// Repository defines persistence operations for settlements and the order
// item flags that back them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EligibleItems(ctx context.Context, deliveredBefore time.Time) ([]eligibleItem, error)
	Create(ctx context.Context, settlement *models.Settlement) error
	ClaimItems(ctx context.Context, settlementID uuid.UUID, itemIDs []uuid.UUID) (int64, error)
	MarkOrdersSettled(ctx context.Context, orderIDs []uuid.UUID) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	List(ctx context.Context, query listQuery) ([]models.Settlement, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

type eligibleItem struct {
	ItemID       uuid.UUID       `gorm:"column:item_id"`
	OrderID      uuid.UUID       `gorm:"column:order_id"`
	SellerID     uuid.UUID       `gorm:"column:seller_id"`
	SellerAmount decimal.Decimal `gorm:"column:seller_amount"`
}

// EligibleItems lists unsettled delivered items of delivered orders that were
// delivered before the cutoff. Items with an open return are held back.
func (r *repository) EligibleItems(ctx context.Context, deliveredBefore time.Time) ([]eligibleItem, error) {
	var rows []eligibleItem
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.id AS item_id, order_items.order_id AS order_id, order_items.seller_id AS seller_id, order_items.seller_amount AS seller_amount").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status = ? AND orders.delivered_at IS NOT NULL AND orders.delivered_at < ?", enums.OrderStatusDelivered, deliveredBefore).
		Where("order_items.status = ? AND order_items.is_settled = ?", enums.OrderStatusDelivered, false).
		Where("NOT EXISTS (SELECT 1 FROM returns r WHERE r.order_item_id = order_items.id AND r.status NOT IN ?)",
			[]enums.ReturnStatus{enums.ReturnStatusRejected, enums.ReturnStatusClosed}).
		Order("order_items.seller_id ASC, orders.delivered_at ASC, order_items.position ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

// ClaimItems attaches still-unsettled items to a settlement and reports how
// many it claimed. A short count means a concurrent sweep got there first.
func (r *repository) ClaimItems(ctx context.Context, settlementID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN ? AND is_settled = ?", itemIDs, false).
		UpdateColumns(map[string]any{
			"is_settled":    true,
			"settlement_id": settlementID,
		})
	return result.RowsAffected, result.Error
}

// MarkOrdersSettled flags orders none of whose delivered items remain unsettled.
func (r *repository) MarkOrdersSettled(ctx context.Context, orderIDs []uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND is_settled = ?", orderIDs, false).
		Where("NOT EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.status = ? AND oi.is_settled = ?)",
			enums.OrderStatusDelivered, false).
		UpdateColumn("is_settled", true)
	return result.RowsAffected, result.Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&settlement).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

type listQuery struct {
	SellerID *uuid.UUID
	Status   *enums.SettlementStatus
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Settlement, error) {
	q := r.db.WithContext(ctx).Model(&models.Settlement{})
	if query.SellerID != nil {
		q = q.Where("seller_id = ?", *query.SellerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Settlement
	err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", id).
		Updates(updates).Error
}
