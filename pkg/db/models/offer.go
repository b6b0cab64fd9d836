package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/marketplace-orders/pkg/db/types"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// UnlimitedUsage disables a usage cap.
const UnlimitedUsage = -1

// Offer is a coupon definition together with its running usage counter.
type Offer struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code               string              `gorm:"column:code;not null"`
	Type               enums.OfferType     `gorm:"column:type;type:offer_type;not null"`
	Value              decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderValue      *decimal.Decimal    `gorm:"column:min_order_value;type:numeric(12,2)"`
	MaxDiscountValue   *decimal.Decimal    `gorm:"column:max_discount_value;type:numeric(12,2)"`
	Description        *string             `gorm:"column:description"`
	StartDate          time.Time           `gorm:"column:start_date;not null"`
	EndDate            time.Time           `gorm:"column:end_date;not null"`
	IsActive           bool                `gorm:"column:is_active;not null"`
	ApplicableFor      enums.OfferAudience `gorm:"column:applicable_for;type:offer_audience;not null"`
	SpecificUsers      dbtypes.UUIDArray   `gorm:"column:specific_users;type:uuid[]"`
	SpecificProducts   dbtypes.UUIDArray   `gorm:"column:specific_products;type:uuid[]"`
	SpecificCategories dbtypes.UUIDArray   `gorm:"column:specific_categories;type:uuid[]"`
	ApplicableSellers  dbtypes.UUIDArray   `gorm:"column:applicable_sellers;type:uuid[]"`
	UsageLimit         int                 `gorm:"column:usage_limit;not null"`
	PerUserLimit       int                 `gorm:"column:per_user_limit;not null"`
	UsageCount         int                 `gorm:"column:usage_count;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OfferUsage is the per-user usage ledger entry for an offer.
type OfferUsage struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OfferID    uuid.UUID `gorm:"column:offer_id;type:uuid;not null"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Count      int       `gorm:"column:count;not null"`
	LastUsedAt time.Time `gorm:"column:last_used_at;not null"`
}
