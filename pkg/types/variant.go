package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ProductVariant is a purchasable variation of a product.
type ProductVariant struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	IsActive bool            `json:"is_active"`
}

type ProductVariants []ProductVariant

// Find returns the variant with the given id.
func (v ProductVariants) Find(id string) (ProductVariant, bool) {
	for _, variant := range v {
		if variant.ID == id {
			return variant, true
		}
	}
	return ProductVariant{}, false
}

// Value serializes the variants to JSON.
func (v ProductVariants) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the variant list.
func (v *ProductVariants) Scan(value interface{}) error {
	if value == nil {
		*v = ProductVariants{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded ProductVariants
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*v = decoded
	return nil
}
