package enums

import "fmt"

// ReceivedCondition records the state of a returned parcel.
type ReceivedCondition string

const (
	ReceivedConditionGood           ReceivedCondition = "good"
	ReceivedConditionDamaged        ReceivedCondition = "damaged"
	ReceivedConditionNotAsDescribed ReceivedCondition = "not_as_described"
	ReceivedConditionNotReceived    ReceivedCondition = "not_received"
)

var validReceivedConditions = []ReceivedCondition{
	ReceivedConditionGood,
	ReceivedConditionDamaged,
	ReceivedConditionNotAsDescribed,
	ReceivedConditionNotReceived,
}

// String implements fmt.Stringer.
func (v ReceivedCondition) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ReceivedCondition.
func (v ReceivedCondition) IsValid() bool {
	for _, candidate := range validReceivedConditions {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseReceivedCondition converts raw input into ReceivedCondition.
func ParseReceivedCondition(value string) (ReceivedCondition, error) {
	for _, candidate := range validReceivedConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid received condition %q", value)
}
