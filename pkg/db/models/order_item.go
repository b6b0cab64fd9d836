package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// OrderItem is a line of an order. Name, SKU, image and price are captured at
// order time and never follow later catalog edits.
type OrderItem struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Position           int                 `gorm:"column:position;not null"`
	ProductID          uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	VariantID          *string             `gorm:"column:variant_id"`
	SellerID           uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	CategoryID         *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Name               string              `gorm:"column:name;not null"`
	SKU                string              `gorm:"column:sku;not null"`
	Image              *string             `gorm:"column:image"`
	Price              decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity           int                 `gorm:"column:quantity;not null"`
	Tax                decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	SellerAmount       decimal.Decimal     `gorm:"column:seller_amount;type:numeric(12,2);not null"`
	PlatformFee        decimal.Decimal     `gorm:"column:platform_fee;type:numeric(12,2);not null"`
	Status             enums.OrderStatus   `gorm:"column:status;type:order_status;not null"`
	StatusHistory      types.StatusHistory `gorm:"column:status_history;type:jsonb;not null"`
	TrackingNumber     *string             `gorm:"column:tracking_number"`
	TrackingURL        *string             `gorm:"column:tracking_url"`
	ShippingProvider   *string             `gorm:"column:shipping_provider"`
	ShippedAt          *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CancellationReason *string             `gorm:"column:cancellation_reason"`
	StockRestored      bool                `gorm:"column:stock_restored;not null"`
	ReturnRequested    bool                `gorm:"column:return_requested;not null"`
	ReturnRequestedAt  *time.Time          `gorm:"column:return_requested_at"`
	ReturnReason       *string             `gorm:"column:return_reason"`
	ReturnID           *uuid.UUID          `gorm:"column:return_id;type:uuid"`
	IsSettled          bool                `gorm:"column:is_settled;not null"`
	SettlementID       *uuid.UUID          `gorm:"column:settlement_id;type:uuid"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// LineAmount is price*quantity, the pre-tax amount split between seller and platform.
func (i OrderItem) LineAmount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
