package enums

import "fmt"

// OfferAudience restricts which buyers may redeem a coupon.
type OfferAudience string

const (
	OfferAudienceAll           OfferAudience = "all"
	OfferAudienceNewUsers      OfferAudience = "new_users"
	OfferAudienceExistingUsers OfferAudience = "existing_users"
	OfferAudienceSpecificUsers OfferAudience = "specific_users"
)

var validOfferAudiences = []OfferAudience{
	OfferAudienceAll,
	OfferAudienceNewUsers,
	OfferAudienceExistingUsers,
	OfferAudienceSpecificUsers,
}

// String implements fmt.Stringer.
func (v OfferAudience) String() string {
	return string(v)
}

// IsValid reports whether the value is a known OfferAudience.
func (v OfferAudience) IsValid() bool {
	for _, candidate := range validOfferAudiences {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseOfferAudience converts raw input into OfferAudience.
func ParseOfferAudience(value string) (OfferAudience, error) {
	for _, candidate := range validOfferAudiences {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer audience %q", value)
}
