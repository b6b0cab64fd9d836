package settlements

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// ListParams filters and paginates a settlement listing. SellerID is only
// honoured for admins; sellers are always scoped to their own storefront.
type ListParams struct {
	SellerID *uuid.UUID
	Status   *enums.SettlementStatus
	Limit    int
	Cursor   string
}

// SettlementList is one page of settlements.
type SettlementList struct {
	Settlements []models.Settlement `json:"settlements"`
	NextCursor  string              `json:"next_cursor,omitempty"`
}

// UpdateStatusInput moves a settlement along its payout lifecycle.
type UpdateStatusInput struct {
	Actor          types.Actor
	SettlementID   uuid.UUID
	Status         enums.SettlementStatus
	TransactionRef string
	Notes          string
}

// SweepResult summarizes one settlement sweep run.
type SweepResult struct {
	Sellers     int
	Settlements int
	Items       int
}
