package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// CreateReturnInput files a return or exchange against one delivered item.
type CreateReturnInput struct {
	Actor             types.Actor
	OrderID           uuid.UUID
	ItemID            uuid.UUID
	Type              enums.ReturnType
	Reason            enums.ReturnReason
	Description       string
	Images            []string
	VideoURL          *string
	PickupAddress     *types.Address
	ExchangeProductID *uuid.UUID
	ExchangeVariantID *string
}

// UpdateStatusInput moves a return one step. Only the fields of the target
// step are read.
type UpdateStatusInput struct {
	Actor                  types.Actor
	ReturnID               uuid.UUID
	Status                 enums.ReturnStatus
	Comment                string
	RejectionReason        *string
	PickupDate             *time.Time
	PickupSlot             *string
	TrackingNumber         *string
	ShippingProvider       *string
	ReceivedCondition      *enums.ReceivedCondition
	ReceivedNotes          *string
	RefundAmount           *decimal.Decimal
	RefundTransactionID    *string
	ExchangeTrackingNumber *string
}

// ComplaintInput is a seller complaint against a return.
type ComplaintInput struct {
	Actor     types.Actor
	ReturnID  uuid.UUID
	Complaint string
	Reason    string
}

// ResolveComplaintInput is the admin decision on a seller complaint.
type ResolveComplaintInput struct {
	Actor      types.Actor
	ReturnID   uuid.UUID
	Status     enums.ComplaintStatus
	Resolution string
}

// ListParams filters and paginates a return listing.
type ListParams struct {
	Status *enums.ReturnStatus
	Limit  int
	Cursor string
}

// ReturnList is one page of returns.
type ReturnList struct {
	Returns    []models.Return `json:"returns"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// SweepResult summarizes one penalty sweep run.
type SweepResult struct {
	Candidates int
	Penalized  int
}
