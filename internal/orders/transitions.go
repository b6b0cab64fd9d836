package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type change struct {
	actor    types.Actor
	status   enums.OrderStatus
	comment  string
	reason   string
	tracking Tracking
}

type transitionOutcome struct {
	order    *models.Order
	changed  []uuid.UUID
	sellers  []uuid.UUID
	promoted bool
}

func (s *service) UpdateItemStatus(ctx context.Context, input UpdateItemStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id required")
	}
	if err := validateTarget(input.Status); err != nil {
		return nil, err
	}
	ctx = s.actorContext(ctx, input.Actor, input.OrderID)
	sellerID, err := s.sellerScope(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	ch := change{
		actor:    input.Actor,
		status:   input.Status,
		comment:  input.Comment,
		reason:   input.CancellationReason,
		tracking: input.Tracking,
	}

	var outcome transitionOutcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		item, ok := order.FindItem(input.ItemID)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if err := s.authorize(ctx, input.Actor, sellerID, order, item, input.Status); err != nil {
			return err
		}

		outcome.order = order
		changed, err := s.transitionItem(ctx, tx, item, ch)
		if err != nil || !changed {
			return err
		}
		outcome.changed = []uuid.UUID{item.ID}
		outcome.sellers = []uuid.UUID{item.SellerID}

		if outcome.promoted, err = s.promote(ctx, repo, order); err != nil {
			return err
		}
		return s.emitStatusChanged(ctx, tx, order, outcome.changed, ch)
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, outcome, ch, true)
	return outcome.order, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateOrderStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := validateTarget(input.Status); err != nil {
		return nil, err
	}
	ctx = s.actorContext(ctx, input.Actor, input.OrderID)
	sellerID, err := s.sellerScope(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	ch := change{
		actor:    input.Actor,
		status:   input.Status,
		comment:  input.Comment,
		reason:   input.CancellationReason,
		tracking: input.Tracking,
	}

	var outcome transitionOutcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		outcome.order = order

		targets, err := s.addressedItems(ctx, input, sellerID, order)
		if err != nil {
			return err
		}

		seen := map[uuid.UUID]struct{}{}
		for _, item := range targets {
			changed, err := s.transitionItem(ctx, tx, item, ch)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			outcome.changed = append(outcome.changed, item.ID)
			if _, ok := seen[item.SellerID]; !ok {
				seen[item.SellerID] = struct{}{}
				outcome.sellers = append(outcome.sellers, item.SellerID)
			}
		}
		if len(outcome.changed) == 0 {
			return nil
		}

		if outcome.promoted, err = s.promote(ctx, repo, order); err != nil {
			return err
		}
		return s.emitStatusChanged(ctx, tx, order, outcome.changed, ch)
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, outcome, ch, false)
	return outcome.order, nil
}

// addressedItems picks the items an order-level request applies to and checks
// the actor may touch every one of them. Items already cancelled are left out
// unless they were named explicitly.
func (s *service) addressedItems(ctx context.Context, input UpdateOrderStatusInput, sellerID uuid.UUID, order *models.Order) ([]*models.OrderItem, error) {
	actor := input.Actor
	if actor.IsUser() {
		if order.UserID != actor.UserID {
			return nil, s.denied(ctx, "order belongs to another user")
		}
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusCancelled {
			return nil, s.denied(ctx, "only pending orders can be cancelled")
		}
	}
	if actor.IsSeller() && !order.HasSeller(sellerID) {
		return nil, s.denied(ctx, "order has no items from this seller")
	}

	var targets []*models.OrderItem
	if len(input.ItemIDs) > 0 {
		for _, id := range input.ItemIDs {
			item, ok := order.FindItem(id)
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found").
					WithDetails(map[string]any{"item_id": id.String()})
			}
			targets = append(targets, item)
		}
	} else {
		for i := range order.Items {
			item := &order.Items[i]
			if item.Status == enums.OrderStatusCancelled {
				continue
			}
			if actor.IsSeller() && item.SellerID != sellerID {
				continue
			}
			targets = append(targets, item)
		}
	}

	for _, item := range targets {
		if err := s.authorize(ctx, actor, sellerID, order, item, input.Status); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// authorize applies the role rules: users cancel their own pending items,
// sellers move their own items to processing or shipped, admins do anything.
func (s *service) authorize(ctx context.Context, actor types.Actor, sellerID uuid.UUID, order *models.Order, item *models.OrderItem, target enums.OrderStatus) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleUser:
		if order.UserID != actor.UserID {
			return s.denied(ctx, "order belongs to another user")
		}
		if target != enums.OrderStatusCancelled {
			return s.denied(ctx, "users can only cancel orders")
		}
		if item.Status != enums.OrderStatusPending && item.Status != enums.OrderStatusCancelled {
			return s.denied(ctx, "only pending items can be cancelled")
		}
		return nil
	case enums.ActorRoleSeller:
		if item.SellerID != sellerID {
			return s.denied(ctx, "item belongs to another seller")
		}
		switch target {
		case enums.OrderStatusProcessing:
			if item.Status != enums.OrderStatusPending && item.Status != target {
				return invalidTransition(item.Status, target)
			}
		case enums.OrderStatusShipped:
			if item.Status != enums.OrderStatusPending && item.Status != enums.OrderStatusProcessing && item.Status != target {
				return invalidTransition(item.Status, target)
			}
		default:
			return s.denied(ctx, "sellers can only update status to processing or shipped")
		}
		return nil
	}
	return s.denied(ctx, "role cannot update orders")
}

// transitionItem applies one status change to an item. It reports false when
// the item is already in the target status.
func (s *service) transitionItem(ctx context.Context, tx *gorm.DB, item *models.OrderItem, ch change) (bool, error) {
	if item.Status == ch.status {
		return false, nil
	}
	if item.Status == enums.OrderStatusCancelled {
		return false, invalidTransition(item.Status, ch.status)
	}
	if ch.status == enums.OrderStatusReturned && item.Status != enums.OrderStatusDelivered {
		return false, invalidTransition(item.Status, ch.status)
	}

	now := s.now()
	item.Status = ch.status
	item.StatusHistory = item.StatusHistory.Append(types.StatusEntry{
		Status:    string(ch.status),
		Comment:   ch.comment,
		ActorRole: string(ch.actor.Role),
		ActorID:   ch.actor.ActorID(),
		At:        now,
	})
	updates := map[string]any{
		"status":         item.Status,
		"status_history": item.StatusHistory,
	}

	switch ch.status {
	case enums.OrderStatusShipped:
		item.ShippedAt = &now
		updates["shipped_at"] = now
		if ch.tracking.Number != nil {
			item.TrackingNumber = ch.tracking.Number
			updates["tracking_number"] = *ch.tracking.Number
		}
		if ch.tracking.URL != nil {
			item.TrackingURL = ch.tracking.URL
			updates["tracking_url"] = *ch.tracking.URL
		}
		if ch.tracking.Provider != nil {
			item.ShippingProvider = ch.tracking.Provider
			updates["shipping_provider"] = *ch.tracking.Provider
		}
	case enums.OrderStatusDelivered:
		item.DeliveredAt = &now
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		reason := ch.reason
		if reason == "" {
			reason = defaultCancellationReason
		}
		item.CancelledAt = &now
		item.CancellationReason = &reason
		updates["cancelled_at"] = now
		updates["cancellation_reason"] = reason
	}

	repo := s.repo.WithTx(tx)
	if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
	}

	if ch.status == enums.OrderStatusCancelled {
		if err := s.restoreStock(ctx, tx, item); err != nil {
			return false, err
		}
	}
	return true, nil
}

// restoreStock returns an item's quantity to the catalog at most once.
func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, item *models.OrderItem) error {
	claimed, err := s.repo.WithTx(tx).MarkStockRestored(ctx, item.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark stock restored")
	}
	if !claimed {
		s.logg.Warn(s.logg.WithField(ctx, "item_id", item.ID.String()), "stock already restored for item")
		return nil
	}
	item.StockRestored = true
	return s.catalog.WithTx(tx).Restore(ctx, item.ProductID, item.Quantity)
}

// promote re-derives the order status from its items. The order only moves
// when every item shares one status.
func (s *service) promote(ctx context.Context, repo Repository, order *models.Order) (bool, error) {
	derived, uniform := deriveStatus(order.Items)
	if !uniform || derived == order.Status {
		return false, nil
	}

	now := s.now()
	order.Status = derived
	order.StatusHistory = order.StatusHistory.Append(types.StatusEntry{
		Status:    string(derived),
		Comment:   fmt.Sprintf("All items are now %s", derived),
		ActorRole: string(enums.ActorRoleSystem),
		At:        now,
	})
	updates := map[string]any{
		"status":         order.Status,
		"status_history": order.StatusHistory,
	}
	switch derived {
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		reason := "All items cancelled"
		order.CancelledAt = &now
		order.CancellationReason = &reason
		updates["cancelled_at"] = now
		updates["cancellation_reason"] = reason
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	return true, nil
}

func deriveStatus(items []models.OrderItem) (enums.OrderStatus, bool) {
	if len(items) == 0 {
		return "", false
	}
	status := items[0].Status
	for _, item := range items[1:] {
		if item.Status != status {
			return "", false
		}
	}
	return status, true
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, itemIDs []uuid.UUID, ch change) error {
	var actor *outbox.ActorRef
	if ch.actor.UserID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: ch.actor.UserID, Role: string(ch.actor.Role)}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ItemIDs:     itemIDs,
			Status:      ch.status,
			OrderStatus: order.Status,
			ActorRole:   ch.actor.Role,
		},
		OccurredAt: s.now(),
	})
}

// afterTransition runs the post-commit side effects: metrics and
// notifications. The buyer is always told; sellers only hear about changes
// the buyer made.
func (s *service) afterTransition(ctx context.Context, outcome transitionOutcome, ch change, itemLevel bool) {
	if len(outcome.changed) == 0 {
		return
	}
	s.metrics.IncTransition(string(ch.status), string(ch.actor.Role), len(outcome.changed))
	if outcome.promoted {
		s.logg.Info(s.logg.WithField(ctx, "order_status", string(outcome.order.Status)), "order status promoted")
	}

	order := outcome.order
	data := orderData(order)
	data["status"] = string(ch.status)
	critical := ch.status == enums.OrderStatusShipped ||
		ch.status == enums.OrderStatusDelivered ||
		ch.status == enums.OrderStatusCancelled

	title := "Order Status Updated"
	body := fmt.Sprintf("Your order #%s status has been updated to %s.", order.OrderNumber, ch.status)
	if itemLevel {
		title = "Order Item Status Updated"
		body = fmt.Sprintf("An item in your order #%s has been updated to %s.", order.OrderNumber, ch.status)
	}
	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   order.UserID,
		RecipientRole: enums.ActorRoleUser,
		Type:          enums.NotificationTypeOrderStatus,
		Title:         title,
		Body:          body,
		Data:          data,
		SMS:           critical,
	})

	if !ch.actor.IsUser() {
		return
	}
	for _, sellerID := range outcome.sellers {
		sellerTitle := "Order Status Updated"
		sellerBody := fmt.Sprintf("Order #%s has been %s by the customer.", order.OrderNumber, ch.status)
		if itemLevel {
			sellerTitle = "Order Item Cancelled"
			sellerBody = fmt.Sprintf("An item in order #%s has been cancelled by the customer.", order.OrderNumber)
		}
		s.notifier.Send(ctx, notifications.Message{
			RecipientID:   sellerID,
			RecipientRole: enums.ActorRoleSeller,
			Type:          enums.NotificationTypeOrderStatus,
			Title:         sellerTitle,
			Body:          sellerBody,
			Data:          data,
		})
	}
}

// sellerScope resolves the storefront of a seller actor. Other roles get uuid.Nil.
func (s *service) sellerScope(ctx context.Context, actor types.Actor) (uuid.UUID, error) {
	if !actor.IsSeller() {
		return uuid.Nil, nil
	}
	if actor.SellerID != nil && *actor.SellerID != uuid.Nil {
		return *actor.SellerID, nil
	}
	seller, err := s.catalog.SellerForUser(ctx, actor.UserID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller profile not found")
		}
		return uuid.Nil, err
	}
	return seller.ID, nil
}

func (s *service) actorContext(ctx context.Context, actor types.Actor, orderID uuid.UUID) context.Context {
	ctx = s.logg.WithUserID(ctx, actor.UserID.String())
	ctx = s.logg.WithActorRole(ctx, string(actor.Role))
	return s.logg.WithOrderID(ctx, orderID.String())
}

func (s *service) denied(ctx context.Context, reason string) error {
	s.logg.AccessDenied(ctx, reason)
	return pkgerrors.New(pkgerrors.CodeForbidden, "you do not have permission to update this order").
		WithDetails(map[string]any{"reason": reason})
}

func loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func validateTarget(status enums.OrderStatus) error {
	if status == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if status == enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeValidation, "orders cannot be moved back to pending")
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
		fmt.Sprintf("cannot move item from %s to %s", from, to)).
		WithDetails(map[string]any{"reason": string(pkgerrors.ReasonInvalidTransition), "from": string(from), "to": string(to)})
}
