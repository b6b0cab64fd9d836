package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

// UpdateStatus advances a return one step of its workflow. Refunds also mark
// the item returned and record a ledger refund.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Return, error) {
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}
	actor := input.Actor
	ctx = s.logg.WithUserID(ctx, actor.UserID.String())
	ctx = s.logg.WithActorRole(ctx, string(actor.Role))
	sellerID, err := s.sellerScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	var ret *models.Return
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if ret, err = s.load(ctx, repo, input.ReturnID, true); err != nil {
			return err
		}
		if err := s.canManage(ctx, actor, sellerID, ret); err != nil {
			return err
		}
		if !ret.Status.CanMoveTo(input.Status) {
			return pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
				fmt.Sprintf("cannot move return from %s to %s", ret.Status, input.Status)).
				WithDetails(map[string]any{
					"reason": string(pkgerrors.ReasonInvalidTransition),
					"from":   string(ret.Status),
					"to":     string(input.Status),
				})
		}

		now := s.now()
		updates, err := s.applyStep(ctx, tx, ret, input, now)
		if err != nil {
			return err
		}
		ret.Status = input.Status
		ret.StatusHistory = ret.StatusHistory.Append(types.StatusEntry{
			Status:    string(input.Status),
			Comment:   input.Comment,
			ActorRole: string(actor.Role),
			ActorID:   actor.ActorID(),
			At:        now,
		})
		updates["status"] = ret.Status
		updates["status_history"] = ret.StatusHistory
		if err := repo.Update(ctx, ret.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnStatusChanged,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.ReturnStatusChangedEvent{
				ReturnID: ret.ID,
				OrderID:  ret.OrderID,
				SellerID: ret.SellerID,
				Status:   ret.Status,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   ret.UserID,
		RecipientRole: enums.ActorRoleUser,
		Type:          enums.NotificationTypeReturn,
		Title:         "Return Status Updated",
		Body:          fmt.Sprintf("Your %s request for %s is now %s.", ret.Type, itemLabel(ret), ret.Status),
		Data:          returnData(ret),
		SMS:           ret.Status == enums.ReturnStatusRefunded || ret.Status == enums.ReturnStatusExchanged,
	})
	return ret, nil
}

// applyStep validates and records the fields owned by the target step.
func (s *service) applyStep(ctx context.Context, tx *gorm.DB, ret *models.Return, input UpdateStatusInput, now time.Time) (map[string]any, error) {
	updates := map[string]any{}
	actorID := input.Actor.ActorID()

	switch input.Status {
	case enums.ReturnStatusApproved:
		ret.ApprovedBy, ret.ApprovedAt = actorID, &now
		updates["approved_by"] = actorID
		updates["approved_at"] = now
	case enums.ReturnStatusRejected:
		reason := trimmed(input.RejectionReason)
		if reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
		}
		ret.RejectedBy, ret.RejectedAt, ret.RejectionReason = actorID, &now, &reason
		updates["rejected_by"] = actorID
		updates["rejected_at"] = now
		updates["rejection_reason"] = reason
	case enums.ReturnStatusPickupScheduled:
		if input.PickupDate == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup date required")
		}
		ret.PickupDate = input.PickupDate
		updates["pickup_date"] = *input.PickupDate
		if slot := trimmed(input.PickupSlot); slot != "" {
			ret.PickupSlot = &slot
			updates["pickup_slot"] = slot
		}
		setShipment(ret, updates, input)
	case enums.ReturnStatusPickedUp:
		setShipment(ret, updates, input)
	case enums.ReturnStatusReceived:
		condition := enums.ReceivedConditionGood
		if input.ReceivedCondition != nil {
			if !input.ReceivedCondition.IsValid() {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid received condition")
			}
			condition = *input.ReceivedCondition
		}
		ret.ReceivedAt, ret.ReceivedCondition = &now, &condition
		updates["received_at"] = now
		updates["received_condition"] = condition
		if notes := trimmed(input.ReceivedNotes); notes != "" {
			ret.ReceivedNotes = &notes
			updates["received_notes"] = notes
		}
	case enums.ReturnStatusRefunded:
		if ret.Type != enums.ReturnTypeReturn {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "exchanges cannot be refunded")
		}
		if err := s.refund(ctx, tx, ret, input, now, updates); err != nil {
			return nil, err
		}
	case enums.ReturnStatusExchanged:
		if ret.Type != enums.ReturnTypeExchange {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only exchange requests can be exchanged")
		}
		ret.ExchangeShippedAt = &now
		updates["exchange_shipped_at"] = now
		if tracking := trimmed(input.ExchangeTrackingNumber); tracking != "" {
			ret.ExchangeTrackingNumber = &tracking
			updates["exchange_tracking_number"] = tracking
		}
	}
	return updates, nil
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, ret *models.Return, input UpdateStatusInput, now time.Time, updates map[string]any) error {
	orderRepo := s.orders.WithTx(tx)
	order, err := orderRepo.FindOrderForUpdate(ctx, ret.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	item, ok := order.FindItem(ret.OrderItemID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}

	amount := item.Total
	if input.RefundAmount != nil {
		amount = *input.RefundAmount
	}
	if amount.IsNegative() || amount.GreaterThan(item.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be between 0 and the item total").
			WithDetails(map[string]any{"item_total": item.Total.StringFixed(2)})
	}
	amount = amount.Round(2)
	ret.RefundAmount, ret.RefundedAt = &amount, &now
	updates["refund_amount"] = amount
	updates["refunded_at"] = now
	if txID := trimmed(input.RefundTransactionID); txID != "" {
		ret.RefundTransactionID = &txID
		updates["refund_transaction_id"] = txID
	}

	if err := s.markReturned(ctx, orderRepo, order, item, input.Actor, now); err != nil {
		return err
	}

	metadata, err := json.Marshal(map[string]any{
		"order_id":      ret.OrderID.String(),
		"order_item_id": ret.OrderItemID.String(),
	})
	if err != nil {
		return err
	}
	_, err = s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		SellerID:    ret.SellerID,
		ReturnID:    &ret.ID,
		ActorUserID: input.Actor.ActorID(),
		Type:        enums.LedgerEventTypeRefund,
		Amount:      amount,
		Metadata:    metadata,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	return nil
}

// markReturned moves a delivered item to returned, and the order with it once
// every item has been returned.
func (s *service) markReturned(ctx context.Context, repo orders.Repository, order *models.Order, item *models.OrderItem, actor types.Actor, now time.Time) error {
	if item.Status != enums.OrderStatusDelivered {
		return nil
	}
	item.Status = enums.OrderStatusReturned
	item.StatusHistory = item.StatusHistory.Append(types.StatusEntry{
		Status:    string(enums.OrderStatusReturned),
		Comment:   "Return refunded",
		ActorRole: string(actor.Role),
		ActorID:   actor.ActorID(),
		At:        now,
	})
	if err := repo.UpdateItem(ctx, item.ID, map[string]any{
		"status":         item.Status,
		"status_history": item.StatusHistory,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
	}

	for _, other := range order.Items {
		if other.Status != enums.OrderStatusReturned {
			return nil
		}
	}
	if order.Status == enums.OrderStatusReturned {
		return nil
	}
	order.Status = enums.OrderStatusReturned
	order.StatusHistory = order.StatusHistory.Append(types.StatusEntry{
		Status:    string(enums.OrderStatusReturned),
		Comment:   fmt.Sprintf("All items are now %s", enums.OrderStatusReturned),
		ActorRole: string(enums.ActorRoleSystem),
		At:        now,
	})
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"status":         order.Status,
		"status_history": order.StatusHistory,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	return nil
}

// FileComplaint lets the owning seller dispute a return. Only one complaint
// may be pending at a time.
func (s *service) FileComplaint(ctx context.Context, input ComplaintInput) (*models.Return, error) {
	complaint := strings.TrimSpace(input.Complaint)
	if input.ReturnID == uuid.Nil || complaint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id and complaint required")
	}
	if !input.Actor.IsSeller() {
		return nil, s.denied(ctx, "only sellers can file complaints")
	}
	sellerID, err := s.sellerScope(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	var ret *models.Return
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if ret, err = s.load(ctx, repo, input.ReturnID, true); err != nil {
			return err
		}
		if err := s.canManage(ctx, input.Actor, sellerID, ret); err != nil {
			return err
		}
		if ret.SellerComplaintStatus != nil && *ret.SellerComplaintStatus == enums.ComplaintStatusPending {
			return pkgerrors.New(pkgerrors.CodeConflict, "a complaint is already pending for this return")
		}

		status := enums.ComplaintStatusPending
		ret.SellerComplaint, ret.SellerComplaintStatus = &complaint, &status
		ret.SellerComplaintResolution = nil
		updates := map[string]any{
			"seller_complaint":            complaint,
			"seller_complaint_status":     status,
			"seller_complaint_resolution": nil,
		}
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			ret.SellerComplaintReason = &reason
			updates["seller_complaint_reason"] = reason
		}
		return repo.Update(ctx, ret.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "return_id", ret.ID.String()), "seller complaint filed")
	return ret, nil
}

func (s *service) ResolveComplaint(ctx context.Context, input ResolveComplaintInput) (*models.Return, error) {
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	if input.Status != enums.ComplaintStatusResolved && input.Status != enums.ComplaintStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be resolved or rejected")
	}
	if !input.Actor.IsAdmin() {
		return nil, s.denied(ctx, "only admins can resolve complaints")
	}

	var ret *models.Return
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if ret, err = s.load(ctx, repo, input.ReturnID, true); err != nil {
			return err
		}
		if ret.SellerComplaintStatus == nil || *ret.SellerComplaintStatus != enums.ComplaintStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending complaint on this return")
		}
		status := input.Status
		resolution := strings.TrimSpace(input.Resolution)
		ret.SellerComplaintStatus, ret.SellerComplaintResolution = &status, &resolution
		return repo.Update(ctx, ret.ID, map[string]any{
			"seller_complaint_status":     status,
			"seller_complaint_resolution": resolution,
		})
	})
	if err != nil {
		return nil, err
	}

	title := "Complaint Resolved"
	if input.Status == enums.ComplaintStatusRejected {
		title = "Complaint Rejected"
	}
	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   ret.SellerID,
		RecipientRole: enums.ActorRoleSeller,
		Type:          enums.NotificationTypeReturn,
		Title:         title,
		Body:          fmt.Sprintf("Your complaint on the return for %s was %s.", itemLabel(ret), input.Status),
		Data:          returnData(ret),
	})
	return ret, nil
}

func setShipment(ret *models.Return, updates map[string]any, input UpdateStatusInput) {
	if tracking := trimmed(input.TrackingNumber); tracking != "" {
		ret.TrackingNumber = &tracking
		updates["tracking_number"] = tracking
	}
	if provider := trimmed(input.ShippingProvider); provider != "" {
		ret.ShippingProvider = &provider
		updates["shipping_provider"] = provider
	}
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
