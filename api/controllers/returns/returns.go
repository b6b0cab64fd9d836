package returns

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/api/responses"
	"github.com/angelmondragon/marketplace-orders/api/validators"
	internalreturns "github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type createReturnRequest struct {
	OrderID           uuid.UUID      `json:"order_id" validate:"required"`
	ItemID            uuid.UUID      `json:"item_id" validate:"required"`
	Type              string         `json:"type" validate:"required,oneof=return exchange"`
	Reason            string         `json:"reason" validate:"required"`
	Description       string         `json:"description" validate:"required,max=1000"`
	Images            []string       `json:"images,omitempty" validate:"max=10,dive,url"`
	VideoURL          *string        `json:"video_url,omitempty" validate:"omitempty,url"`
	PickupAddress     *types.Address `json:"pickup_address,omitempty"`
	ExchangeProductID *uuid.UUID     `json:"exchange_product_id,omitempty"`
	ExchangeVariantID *string        `json:"exchange_variant_id,omitempty"`
}

type videoRequest struct {
	VideoURL string `json:"video_url" validate:"required,url"`
}

type reviewRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}

type statusRequest struct {
	Status                 string           `json:"status" validate:"required"`
	Comment                string           `json:"comment" validate:"max=500"`
	RejectionReason        *string          `json:"rejection_reason,omitempty"`
	PickupDate             *time.Time       `json:"pickup_date,omitempty"`
	PickupSlot             *string          `json:"pickup_slot,omitempty"`
	TrackingNumber         *string          `json:"tracking_number,omitempty"`
	ShippingProvider       *string          `json:"shipping_provider,omitempty"`
	ReceivedCondition      *string          `json:"received_condition,omitempty"`
	ReceivedNotes          *string          `json:"received_notes,omitempty"`
	RefundAmount           *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundTransactionID    *string          `json:"refund_transaction_id,omitempty"`
	ExchangeTrackingNumber *string          `json:"exchange_tracking_number,omitempty"`
}

type complaintRequest struct {
	Complaint string `json:"complaint" validate:"required,max=1000"`
	Reason    string `json:"reason" validate:"required,max=200"`
}

type resolveRequest struct {
	Status     string `json:"status" validate:"required,oneof=resolved rejected"`
	Resolution string `json:"resolution" validate:"required,max=1000"`
}

// Create files a return or exchange for a delivered item.
func Create(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var payload createReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnType, err := enums.ParseReturnType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return type"))
			return
		}
		reason, err := enums.ParseReturnReason(strings.TrimSpace(payload.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return reason"))
			return
		}

		ret, err := svc.Create(r.Context(), internalreturns.CreateReturnInput{
			Actor:             actor,
			OrderID:           payload.OrderID,
			ItemID:            payload.ItemID,
			Type:              returnType,
			Reason:            reason,
			Description:       validators.SanitizeString(payload.Description, 1000),
			Images:            payload.Images,
			VideoURL:          payload.VideoURL,
			PickupAddress:     payload.PickupAddress,
			ExchangeProductID: payload.ExchangeProductID,
			ExchangeVariantID: payload.ExchangeVariantID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ret)
	}
}

// List returns the caller's returns: own for buyers, own items for sellers.
func List(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalreturns.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := parseStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			params.Status = &status
		}

		list, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.Get(r.Context(), actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

// UploadVideo attaches the unboxing video; this starts the seller review window.
func UploadVideo(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload videoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.UploadVideo(r.Context(), actor, returnID, payload.VideoURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

func ReviewVideo(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.ReviewVideo(r.Context(), actor, returnID, validators.SanitizeString(payload.Comments, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

// UpdateStatus moves the return one step along its workflow.
func UpdateStatus(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

func FileComplaint(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload complaintRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ret, err := svc.FileComplaint(r.Context(), internalreturns.ComplaintInput{
			Actor:     actor,
			ReturnID:  returnID,
			Complaint: validators.SanitizeString(payload.Complaint, 1000),
			Reason:    validators.SanitizeString(payload.Reason, 200),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

func ResolveComplaint(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseComplaintStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid complaint status"))
			return
		}

		ret, err := svc.ResolveComplaint(r.Context(), internalreturns.ResolveComplaintInput{
			Actor:      actor,
			ReturnID:   returnID,
			Status:     status,
			Resolution: validators.SanitizeString(payload.Resolution, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ret)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc internalreturns.Service, logg *logger.Logger) (types.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
		return types.Actor{}, false
	}
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return types.Actor{}, false
	}
	return actor, true
}

func parseStatus(raw string) (enums.ReturnStatus, error) {
	status, err := enums.ParseReturnStatus(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return status")
	}
	return status, nil
}

func (p statusRequest) toInput(actor types.Actor, returnID uuid.UUID) (internalreturns.UpdateStatusInput, error) {
	status, err := parseStatus(p.Status)
	if err != nil {
		return internalreturns.UpdateStatusInput{}, err
	}
	input := internalreturns.UpdateStatusInput{
		Actor:                  actor,
		ReturnID:               returnID,
		Status:                 status,
		Comment:                p.Comment,
		RejectionReason:        p.RejectionReason,
		PickupDate:             p.PickupDate,
		PickupSlot:             p.PickupSlot,
		TrackingNumber:         p.TrackingNumber,
		ShippingProvider:       p.ShippingProvider,
		ReceivedNotes:          p.ReceivedNotes,
		RefundAmount:           p.RefundAmount,
		RefundTransactionID:    p.RefundTransactionID,
		ExchangeTrackingNumber: p.ExchangeTrackingNumber,
	}
	if p.ReceivedCondition != nil {
		condition, err := enums.ParseReceivedCondition(strings.TrimSpace(*p.ReceivedCondition))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid received condition")
		}
		input.ReceivedCondition = &condition
	}
	if p.RefundAmount != nil && p.RefundAmount.IsNegative() {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}
	return input, nil
}
