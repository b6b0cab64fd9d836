package enums

import "fmt"

// ComplaintStatus tracks a seller complaint against a return.
type ComplaintStatus string

const (
	ComplaintStatusPending  ComplaintStatus = "pending"
	ComplaintStatusResolved ComplaintStatus = "resolved"
	ComplaintStatusRejected ComplaintStatus = "rejected"
)

var validComplaintStatuses = []ComplaintStatus{
	ComplaintStatusPending,
	ComplaintStatusResolved,
	ComplaintStatusRejected,
}

// String implements fmt.Stringer.
func (v ComplaintStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ComplaintStatus.
func (v ComplaintStatus) IsValid() bool {
	for _, candidate := range validComplaintStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseComplaintStatus converts raw input into ComplaintStatus.
func ParseComplaintStatus(value string) (ComplaintStatus, error) {
	for _, candidate := range validComplaintStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid complaint status %q", value)
}
