package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Seller is the storefront owned by a seller user.
type Seller struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	BusinessName   string             `gorm:"column:business_name;not null"`
	Email          *string            `gorm:"column:email"`
	Phone          *string            `gorm:"column:phone"`
	Status         enums.SellerStatus `gorm:"column:status;type:seller_status;not null"`
	IsVerified     bool               `gorm:"column:is_verified;not null"`
	CommissionRate *decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,2)"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// CanSell reports whether the seller may take new orders.
func (s Seller) CanSell() bool {
	return s.Status == enums.SellerStatusActive && s.IsVerified
}
