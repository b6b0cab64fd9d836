package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// LineItemInput is one requested product of a new order.
type LineItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	VariantID *string   `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	UserID          uuid.UUID
	Items           []LineItemInput
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	PaymentMethod   enums.PaymentMethod
	CouponCode      *string
	Notes           *string
	IsGift          bool
	GiftMessage     *string
}

// QuoteInput prices a prospective cart, optionally with a coupon.
type QuoteInput struct {
	UserID     uuid.UUID
	Items      []LineItemInput
	CouponCode *string
}

// QuotePreview is the priced cart. Nothing is reserved or recorded.
type QuotePreview struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
	CouponCode   *string         `json:"coupon_code,omitempty"`
	FreeShipping bool            `json:"free_shipping"`
}

// Tracking is the optional shipment metadata recorded on shipped items.
type Tracking struct {
	Number   *string `json:"tracking_number,omitempty"`
	URL      *string `json:"tracking_url,omitempty"`
	Provider *string `json:"shipping_provider,omitempty"`
}

// UpdateOrderStatusInput applies one transition to the items of an order the
// actor may touch. ItemIDs narrows the request to specific items.
type UpdateOrderStatusInput struct {
	Actor              types.Actor
	OrderID            uuid.UUID
	ItemIDs            []uuid.UUID
	Status             enums.OrderStatus
	Comment            string
	CancellationReason string
	Tracking           Tracking
}

// UpdateItemStatusInput applies one transition to a single item.
type UpdateItemStatusInput struct {
	Actor              types.Actor
	OrderID            uuid.UUID
	ItemID             uuid.UUID
	Status             enums.OrderStatus
	Comment            string
	CancellationReason string
	Tracking           Tracking
}

// Duration shortcuts for order listings. Unknown values read as one month.
const (
	ListDurationMonth       = "1m"
	ListDurationThreeMonths = "3m"
	ListDurationYear        = "1y"
)

// Duration shortcuts for order statistics. Unknown values read as 30 days.
const (
	StatsDurationWeek    = "7d"
	StatsDurationMonth   = "30d"
	StatsDurationQuarter = "90d"
	StatsDurationYear    = "1y"
)

// ListParams filters and paginates an order listing.
type ListParams struct {
	Status          *enums.OrderStatus
	StartDate       *time.Time
	EndDate         *time.Time
	Duration        string
	SellerItemsOnly bool
	Limit           int
	Cursor          string
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Invoice is the invoice metadata recorded on an order.
type Invoice struct {
	Number      string    `json:"number"`
	URL         string    `json:"url"`
	GeneratedAt time.Time `json:"generated_at"`
}

// StatsParams selects the window of an order statistics query.
type StatsParams struct {
	StartDate *time.Time
	EndDate   *time.Time
	Duration  string
}

// StatusCount aggregates orders sharing an order-level status.
type StatusCount struct {
	Status enums.OrderStatus `json:"status"`
	Count  int               `json:"count"`
	Total  decimal.Decimal   `json:"total"`
}

// RevenueStats excludes cancelled orders. For sellers the amounts are their
// own sellerAmount, not the order totals.
type RevenueStats struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalOrders       int             `json:"total_orders"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// DailyCount is the number of orders and revenue placed on one UTC day.
type DailyCount struct {
	Date    string          `json:"date"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Stats is the role-scoped order statistics response.
type Stats struct {
	ByStatus []StatusCount `json:"orders_by_status"`
	Revenue  RevenueStats  `json:"revenue"`
	Daily    []DailyCount  `json:"daily_orders"`
}
