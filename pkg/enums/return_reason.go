package enums

import "fmt"

// ReturnReason is the reason taxonomy offered to buyers.
type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonDefective      ReturnReason = "defective"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonSizeIssue      ReturnReason = "size_issue"
	ReturnReasonQualityIssue   ReturnReason = "quality_issue"
	ReturnReasonOther          ReturnReason = "other"
)

var validReturnReasons = []ReturnReason{
	ReturnReasonDamaged,
	ReturnReasonDefective,
	ReturnReasonWrongItem,
	ReturnReasonNotAsDescribed,
	ReturnReasonSizeIssue,
	ReturnReasonQualityIssue,
	ReturnReasonOther,
}

// String implements fmt.Stringer.
func (v ReturnReason) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ReturnReason.
func (v ReturnReason) IsValid() bool {
	for _, candidate := range validReturnReasons {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseReturnReason converts raw input into ReturnReason.
func ParseReturnReason(value string) (ReturnReason, error) {
	for _, candidate := range validReturnReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return reason %q", value)
}
