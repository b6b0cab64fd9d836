package enums

import "fmt"

// ReturnType distinguishes refunds from replacements.
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "return"
	ReturnTypeExchange ReturnType = "exchange"
)

var validReturnTypes = []ReturnType{
	ReturnTypeReturn,
	ReturnTypeExchange,
}

// String implements fmt.Stringer.
func (v ReturnType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known ReturnType.
func (v ReturnType) IsValid() bool {
	for _, candidate := range validReturnTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseReturnType converts raw input into ReturnType.
func ParseReturnType(value string) (ReturnType, error) {
	for _, candidate := range validReturnTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return type %q", value)
}
