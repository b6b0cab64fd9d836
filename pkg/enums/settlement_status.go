package enums

import "fmt"

// SettlementStatus tracks a seller payout batch.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusPaid       SettlementStatus = "paid"
	SettlementStatusFailed     SettlementStatus = "failed"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusProcessing,
	SettlementStatusPaid,
	SettlementStatusFailed,
}

// String implements fmt.Stringer.
func (v SettlementStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known SettlementStatus.
func (v SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
