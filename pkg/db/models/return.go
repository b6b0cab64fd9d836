package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// Return is a return or exchange request filed against a delivered order item.
// The evidence video is flattened into columns so the penalty sweep can
// select on it directly.
type Return struct {
	ID                        uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                   uuid.UUID                `gorm:"column:order_id;type:uuid;not null"`
	OrderItemID               uuid.UUID                `gorm:"column:order_item_id;type:uuid;not null"`
	UserID                    uuid.UUID                `gorm:"column:user_id;type:uuid;not null"`
	SellerID                  uuid.UUID                `gorm:"column:seller_id;type:uuid;not null"`
	ProductID                 uuid.UUID                `gorm:"column:product_id;type:uuid;not null"`
	Type                      enums.ReturnType         `gorm:"column:type;type:return_type;not null"`
	Reason                    enums.ReturnReason       `gorm:"column:reason;type:return_reason;not null"`
	Description               string                   `gorm:"column:description;not null"`
	Images                    pq.StringArray           `gorm:"column:images;type:text[]"`
	VideoURL                  *string                  `gorm:"column:video_url"`
	VideoUploadedAt           *time.Time               `gorm:"column:video_uploaded_at"`
	VideoReviewedBySeller     bool                     `gorm:"column:video_reviewed_by_seller;not null"`
	VideoReviewedAt           *time.Time               `gorm:"column:video_reviewed_at"`
	VideoSellerComments       *string                  `gorm:"column:video_seller_comments"`
	Status                    enums.ReturnStatus       `gorm:"column:status;type:return_status;not null"`
	StatusHistory             types.StatusHistory      `gorm:"column:status_history;type:jsonb;not null"`
	ApprovedBy                *uuid.UUID               `gorm:"column:approved_by;type:uuid"`
	ApprovedAt                *time.Time               `gorm:"column:approved_at"`
	RejectedBy                *uuid.UUID               `gorm:"column:rejected_by;type:uuid"`
	RejectedAt                *time.Time               `gorm:"column:rejected_at"`
	RejectionReason           *string                  `gorm:"column:rejection_reason"`
	PickupDate                *time.Time               `gorm:"column:pickup_date"`
	PickupSlot                *string                  `gorm:"column:pickup_slot"`
	PickupAddress             *types.Address           `gorm:"column:pickup_address;type:jsonb"`
	TrackingNumber            *string                  `gorm:"column:tracking_number"`
	ShippingProvider          *string                  `gorm:"column:shipping_provider"`
	ReceivedAt                *time.Time               `gorm:"column:received_at"`
	ReceivedCondition         *enums.ReceivedCondition `gorm:"column:received_condition;type:received_condition"`
	ReceivedNotes             *string                  `gorm:"column:received_notes"`
	RefundAmount              *decimal.Decimal         `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundedAt                *time.Time               `gorm:"column:refunded_at"`
	RefundTransactionID       *string                  `gorm:"column:refund_transaction_id"`
	ExchangeProductID         *uuid.UUID               `gorm:"column:exchange_product_id;type:uuid"`
	ExchangeVariantID         *string                  `gorm:"column:exchange_variant_id"`
	ExchangeTrackingNumber    *string                  `gorm:"column:exchange_tracking_number"`
	ExchangeShippedAt         *time.Time               `gorm:"column:exchange_shipped_at"`
	PenaltyApplied            bool                     `gorm:"column:penalty_applied;not null"`
	AutoApproved              bool                     `gorm:"column:auto_approved;not null"`
	SellerComplaint           *string                  `gorm:"column:seller_complaint"`
	SellerComplaintReason     *string                  `gorm:"column:seller_complaint_reason"`
	SellerComplaintStatus     *enums.ComplaintStatus   `gorm:"column:seller_complaint_status;type:complaint_status"`
	SellerComplaintResolution *string                  `gorm:"column:seller_complaint_resolution"`
	CreatedAt                 time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpen reports whether the return still blocks another request for the same item.
func (r Return) IsOpen() bool {
	switch r.Status {
	case enums.ReturnStatusRejected, enums.ReturnStatusClosed:
		return false
	}
	return true
}
