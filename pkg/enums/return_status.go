package enums

import "fmt"

// ReturnStatus tracks the return/exchange workflow.
type ReturnStatus string

const (
	ReturnStatusPending         ReturnStatus = "pending"
	ReturnStatusApproved        ReturnStatus = "approved"
	ReturnStatusRejected        ReturnStatus = "rejected"
	ReturnStatusPickupScheduled ReturnStatus = "pickup_scheduled"
	ReturnStatusPickedUp        ReturnStatus = "picked_up"
	ReturnStatusReceived        ReturnStatus = "received"
	ReturnStatusRefunded        ReturnStatus = "refunded"
	ReturnStatusExchanged       ReturnStatus = "exchanged"
	ReturnStatusClosed          ReturnStatus = "closed"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusPickupScheduled,
	ReturnStatusPickedUp,
	ReturnStatusReceived,
	ReturnStatusRefunded,
	ReturnStatusExchanged,
	ReturnStatusClosed,
}

// String implements fmt.Stringer.
func (v ReturnStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ReturnStatus.
func (v ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
