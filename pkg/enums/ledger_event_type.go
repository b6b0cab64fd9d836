package enums

import "fmt"

// LedgerEventType maps to the ledger_event_type enum in Postgres.
type LedgerEventType string

const (
	LedgerEventTypeSettlementCreated LedgerEventType = "settlement_created"
	LedgerEventTypeSettlementPaid    LedgerEventType = "settlement_paid"
	LedgerEventTypeSettlementFailed  LedgerEventType = "settlement_failed"
	LedgerEventTypeRefund            LedgerEventType = "refund"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypeSettlementCreated,
	LedgerEventTypeSettlementPaid,
	LedgerEventTypeSettlementFailed,
	LedgerEventTypeRefund,
}

// String implements fmt.Stringer.
func (v LedgerEventType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known LedgerEventType.
func (v LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
