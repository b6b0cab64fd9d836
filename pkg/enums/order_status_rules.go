package enums

// IsTerminal reports whether no further forward transition is expected.
func (v OrderStatus) IsTerminal() bool {
	switch v {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// ArchivableOrderStatuses are the statuses eligible for retention archival.
func ArchivableOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned}
}

// Next lists the statuses a return may move to from v.
func (v ReturnStatus) Next() []ReturnStatus {
	switch v {
	case ReturnStatusPending:
		return []ReturnStatus{ReturnStatusApproved, ReturnStatusRejected}
	case ReturnStatusApproved:
		return []ReturnStatus{ReturnStatusPickupScheduled}
	case ReturnStatusPickupScheduled:
		return []ReturnStatus{ReturnStatusPickedUp}
	case ReturnStatusPickedUp:
		return []ReturnStatus{ReturnStatusReceived}
	case ReturnStatusReceived:
		return []ReturnStatus{ReturnStatusRefunded, ReturnStatusExchanged}
	case ReturnStatusRejected, ReturnStatusRefunded, ReturnStatusExchanged:
		return []ReturnStatus{ReturnStatusClosed}
	}
	return nil
}

// CanMoveTo reports whether next directly follows v in the return workflow.
func (v ReturnStatus) CanMoveTo(next ReturnStatus) bool {
	for _, candidate := range v.Next() {
		if candidate == next {
			return true
		}
	}
	return false
}

// Next lists the statuses a settlement may move to from v.
func (v SettlementStatus) Next() []SettlementStatus {
	switch v {
	case SettlementStatusPending:
		return []SettlementStatus{SettlementStatusProcessing, SettlementStatusPaid, SettlementStatusFailed}
	case SettlementStatusProcessing:
		return []SettlementStatus{SettlementStatusPaid, SettlementStatusFailed}
	case SettlementStatusFailed:
		return []SettlementStatus{SettlementStatusProcessing}
	}
	return nil
}

// CanMoveTo reports whether next directly follows v in the payout workflow.
func (v SettlementStatus) CanMoveTo(next SettlementStatus) bool {
	for _, candidate := range v.Next() {
		if candidate == next {
			return true
		}
	}
	return false
}
