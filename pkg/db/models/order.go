package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Order is the aggregate root of a placed order. Its Status is derived from
// its items and only promoted when every item agrees.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber           string              `gorm:"column:order_number;not null"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ShippingAddress       types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress        types.Address       `gorm:"column:billing_address;type:jsonb;not null"`
	Payment               types.Payment       `gorm:"column:payment;type:jsonb;not null"`
	Subtotal              decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                   decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	ShippingCost          decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Discount              decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null"`
	Total                 decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	CouponID              *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`
	CouponCode            *string             `gorm:"column:coupon_code"`
	Status                enums.OrderStatus   `gorm:"column:status;type:order_status;not null"`
	StatusHistory         types.StatusHistory `gorm:"column:status_history;type:jsonb;not null"`
	Notes                 *string             `gorm:"column:notes"`
	IsGift                bool                `gorm:"column:is_gift;not null"`
	GiftMessage           *string             `gorm:"column:gift_message"`
	EstimatedDeliveryDate *time.Time          `gorm:"column:estimated_delivery_date"`
	DeliveredAt           *time.Time          `gorm:"column:delivered_at"`
	CancelledAt           *time.Time          `gorm:"column:cancelled_at"`
	CancellationReason    *string             `gorm:"column:cancellation_reason"`
	IsDeleted             bool                `gorm:"column:is_deleted;not null"`
	IsSettled             bool                `gorm:"column:is_settled;not null"`
	InvoiceNumber         *string             `gorm:"column:invoice_number"`
	InvoiceURL            *string             `gorm:"column:invoice_url"`
	InvoiceGeneratedAt    *time.Time          `gorm:"column:invoice_generated_at"`
	Items                 []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// SellerIDs returns the distinct sellers of the order in item order.
func (o Order) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	out := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		out = append(out, item.SellerID)
	}
	return out
}

// HasSeller reports whether any item of the order belongs to sellerID.
func (o Order) HasSeller(sellerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// FindItem returns the item with the given id.
func (o *Order) FindItem(itemID uuid.UUID) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}
