package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// LedgerEvent records an immutable payout lifecycle event for a seller.
type LedgerEvent struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID     uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	SettlementID *uuid.UUID            `gorm:"column:settlement_id;type:uuid"`
	ReturnID     *uuid.UUID            `gorm:"column:return_id;type:uuid"`
	ActorUserID  *uuid.UUID            `gorm:"column:actor_user_id;type:uuid"`
	Type         enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Amount       decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
