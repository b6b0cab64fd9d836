package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Product is the catalog listing read at order time. Stock is tracked at the
// product level; variants only override price, sku and image.
type Product struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID      uuid.UUID             `gorm:"column:seller_id;type:uuid;not null"`
	CategoryID    *uuid.UUID            `gorm:"column:category_id;type:uuid"`
	Name          string                `gorm:"column:name;not null"`
	SKU           string                `gorm:"column:sku;not null"`
	Images        pq.StringArray        `gorm:"column:images;type:text[]"`
	Price         decimal.Decimal       `gorm:"column:price;type:numeric(12,2);not null"`
	TaxRate       decimal.Decimal       `gorm:"column:tax_rate;type:numeric(5,2);not null"`
	StockQuantity int                   `gorm:"column:stock_quantity;not null"`
	SalesCount    int                   `gorm:"column:sales_count;not null"`
	Status        enums.ProductStatus   `gorm:"column:status;type:product_status;not null"`
	Variants      types.ProductVariants `gorm:"column:variants;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// PrimaryImage returns the first image or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
