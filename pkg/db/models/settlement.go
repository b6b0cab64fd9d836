package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/marketplace-orders/pkg/db/types"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Settlement is a payout batch covering a seller's delivered, aged items.
type Settlement struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID       uuid.UUID              `gorm:"column:seller_id;type:uuid;not null"`
	OrderIDs       dbtypes.UUIDArray      `gorm:"column:order_ids;type:uuid[];not null"`
	ItemCount      int                    `gorm:"column:item_count;not null"`
	Amount         decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Status         enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null"`
	PeriodEnd      time.Time              `gorm:"column:period_end;not null"`
	TransactionRef *string                `gorm:"column:transaction_ref"`
	Notes          *string                `gorm:"column:notes"`
	PaidAt         *time.Time             `gorm:"column:paid_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
