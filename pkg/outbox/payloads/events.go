package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// OrderCreatedEvent is emitted once the order and its stock reservation commit.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	SellerIDs   []uuid.UUID     `json:"seller_ids"`
	Total       decimal.Decimal `json:"total"`
	CouponCode  *string         `json:"coupon_code,omitempty"`
}

// OrderStatusChangedEvent reports item transitions and any order-level promotion.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	ItemIDs     []uuid.UUID       `json:"item_ids"`
	Status      enums.OrderStatus `json:"status"`
	OrderStatus enums.OrderStatus `json:"order_status"`
	ActorRole   enums.ActorRole   `json:"actor_role"`
}

// ReturnRequestedEvent is emitted when a buyer files a return or exchange.
type ReturnRequestedEvent struct {
	ReturnID    uuid.UUID        `json:"return_id"`
	OrderID     uuid.UUID        `json:"order_id"`
	OrderItemID uuid.UUID        `json:"order_item_id"`
	SellerID    uuid.UUID        `json:"seller_id"`
	Type        enums.ReturnType `json:"type"`
}

// ReturnStatusChangedEvent follows a return through its workflow.
type ReturnStatusChangedEvent struct {
	ReturnID uuid.UUID          `json:"return_id"`
	OrderID  uuid.UUID          `json:"order_id"`
	SellerID uuid.UUID          `json:"seller_id"`
	Status   enums.ReturnStatus `json:"status"`
}

// ReturnPenalizedEvent is emitted by the penalty sweep.
type ReturnPenalizedEvent struct {
	ReturnID        uuid.UUID `json:"return_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	VideoUploadedAt time.Time `json:"video_uploaded_at"`
	PenalizedAt     time.Time `json:"penalized_at"`
}

// SettlementCreatedEvent is emitted per seller batch created by the sweep.
type SettlementCreatedEvent struct {
	SettlementID uuid.UUID       `json:"settlement_id"`
	SellerID     uuid.UUID       `json:"seller_id"`
	OrderIDs     []uuid.UUID     `json:"order_ids"`
	Amount       decimal.Decimal `json:"amount"`
}

// SettlementUpdatedEvent is emitted when an admin moves a settlement.
type SettlementUpdatedEvent struct {
	SettlementID   uuid.UUID              `json:"settlement_id"`
	SellerID       uuid.UUID              `json:"seller_id"`
	Status         enums.SettlementStatus `json:"status"`
	TransactionRef *string                `json:"transaction_ref,omitempty"`
}
