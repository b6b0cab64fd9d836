package enums

import "fmt"

// SellerStatus gates whether a seller can receive orders.
type SellerStatus string

const (
	SellerStatusPending   SellerStatus = "pending"
	SellerStatusActive    SellerStatus = "active"
	SellerStatusSuspended SellerStatus = "suspended"
	SellerStatusRejected  SellerStatus = "rejected"
)

var validSellerStatuses = []SellerStatus{
	SellerStatusPending,
	SellerStatusActive,
	SellerStatusSuspended,
	SellerStatusRejected,
}

// String implements fmt.Stringer.
func (v SellerStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known SellerStatus.
func (v SellerStatus) IsValid() bool {
	for _, candidate := range validSellerStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseSellerStatus converts raw input into SellerStatus.
func ParseSellerStatus(value string) (SellerStatus, error) {
	for _, candidate := range validSellerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller status %q", value)
}
