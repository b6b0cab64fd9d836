package enums

import "fmt"

// OfferType is the discount strategy of a coupon.
type OfferType string

const (
	OfferTypePercentage   OfferType = "percentage"
	OfferTypeFixed        OfferType = "fixed"
	OfferTypeFreeShipping OfferType = "free_shipping"
	OfferTypeBuyXGetY     OfferType = "buy_x_get_y"
)

var validOfferTypes = []OfferType{
	OfferTypePercentage,
	OfferTypeFixed,
	OfferTypeFreeShipping,
	OfferTypeBuyXGetY,
}

// String implements fmt.Stringer.
func (v OfferType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OfferType.
func (v OfferType) IsValid() bool {
	for _, candidate := range validOfferTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOfferType converts raw input into OfferType.
func ParseOfferType(value string) (OfferType, error) {
	for _, candidate := range validOfferTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer type %q", value)
}
