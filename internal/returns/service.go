package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

const (
	// DefaultPenaltyWindow is how long a seller has to review an evidence video.
	DefaultPenaltyWindow = 9 * time.Hour
	defaultSweepBatch    = 200
)

// Service owns the return/exchange workflow and the penalty sweep.
type Service interface {
	Create(ctx context.Context, input CreateReturnInput) (*models.Return, error)
	Get(ctx context.Context, actor types.Actor, returnID uuid.UUID) (*models.Return, error)
	List(ctx context.Context, actor types.Actor, params ListParams) (*ReturnList, error)
	UploadVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, videoURL string) (*models.Return, error)
	ReviewVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, comments string) (*models.Return, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Return, error)
	FileComplaint(ctx context.Context, input ComplaintInput) (*models.Return, error)
	ResolveComplaint(ctx context.Context, input ResolveComplaintInput) (*models.Return, error)
	ApplyPenalties(ctx context.Context) (SweepResult, error)
}

type service struct {
	repo          Repository
	orders        orderStore
	tx            txRunner
	sellers       sellerResolver
	ledger        ledger.Service
	outbox        outboxPublisher
	notifier      notifier
	metrics       *metrics.OrderMetrics
	logg          *logger.Logger
	now           func() time.Time
	penaltyWindow time.Duration
	sweepBatch    int
}

// ServiceParams wires the returns service.
type ServiceParams struct {
	Repository    Repository
	Orders        orderStore
	Tx            txRunner
	Sellers       sellerResolver
	Ledger        ledger.Service
	Outbox        outboxPublisher
	Notifier      notifier
	Metrics       *metrics.OrderMetrics
	Logger        *logger.Logger
	Now           func() time.Time
	PenaltyWindow time.Duration
	SweepBatch    int
}

// NewService builds the returns service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("returns repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Sellers == nil:
		return nil, fmt.Errorf("seller resolver required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	}

	svc := &service{
		repo:          params.Repository,
		orders:        params.Orders,
		tx:            params.Tx,
		sellers:       params.Sellers,
		ledger:        params.Ledger,
		outbox:        params.Outbox,
		notifier:      params.Notifier,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           params.Now,
		penaltyWindow: params.PenaltyWindow,
		sweepBatch:    params.SweepBatch,
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.penaltyWindow <= 0 {
		svc.penaltyWindow = DefaultPenaltyWindow
	}
	if svc.sweepBatch <= 0 {
		svc.sweepBatch = defaultSweepBatch
	}
	return svc, nil
}

// Create files a return for a delivered item owned by the buyer. An item can
// carry only one open return at a time.
func (s *service) Create(ctx context.Context, input CreateReturnInput) (*models.Return, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	actor := input.Actor
	ctx = s.logg.WithUserID(ctx, actor.UserID.String())
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	if !actor.IsUser() {
		return nil, s.denied(ctx, "only buyers can request returns")
	}

	var ret *models.Return
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		order, err := orderRepo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.UserID != actor.UserID {
			return s.denied(ctx, "order belongs to another user")
		}
		item, ok := order.FindItem(input.ItemID)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if item.Status != enums.OrderStatusDelivered {
			return pkgerrors.Rejection(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
				"only delivered items can be returned").
				WithDetails(map[string]any{"reason": string(pkgerrors.ReasonInvalidTransition), "item_status": string(item.Status)})
		}

		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenForItem(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open returns")
		}
		if open != nil {
			return pkgerrors.Rejection(pkgerrors.CodeConflict, pkgerrors.ReasonReturnExists,
				"a return is already open for this item").
				WithDetails(map[string]any{"reason": string(pkgerrors.ReasonReturnExists), "return_id": open.ID.String()})
		}

		now := s.now()
		ret = buildReturn(input, order, item, now)
		if err := repo.Create(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist return")
		}

		reason := string(input.Reason)
		if err := orderRepo.UpdateItem(ctx, item.ID, map[string]any{
			"return_requested":    true,
			"return_requested_at": now,
			"return_reason":       reason,
			"return_id":           ret.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order item")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.ReturnRequestedEvent{
				ReturnID:    ret.ID,
				OrderID:     ret.OrderID,
				OrderItemID: ret.OrderItemID,
				SellerID:    ret.SellerID,
				Type:        ret.Type,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "return_id", ret.ID.String()), "return requested")
	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   ret.SellerID,
		RecipientRole: enums.ActorRoleSeller,
		Type:          enums.NotificationTypeReturn,
		Title:         "New Return Request",
		Body:          fmt.Sprintf("A %s request was filed for %s.", ret.Type, itemLabel(ret)),
		Data:          returnData(ret),
	})
	return ret, nil
}

func buildReturn(input CreateReturnInput, order *models.Order, item *models.OrderItem, now time.Time) *models.Return {
	pickup := order.ShippingAddress
	if input.PickupAddress != nil {
		pickup = input.PickupAddress.Normalized()
	}
	buyerID := input.Actor.UserID
	comment := "Return requested"
	if input.Type == enums.ReturnTypeExchange {
		comment = "Exchange requested"
	}
	ret := &models.Return{
		ID:                uuid.New(),
		OrderID:           order.ID,
		OrderItemID:       item.ID,
		UserID:            order.UserID,
		SellerID:          item.SellerID,
		ProductID:         item.ProductID,
		Type:              input.Type,
		Reason:            input.Reason,
		Description:       strings.TrimSpace(input.Description),
		Images:            input.Images,
		PickupAddress:     &pickup,
		ExchangeProductID: input.ExchangeProductID,
		ExchangeVariantID: input.ExchangeVariantID,
		Status:            enums.ReturnStatusPending,
		StatusHistory: types.StatusHistory{{
			Status:    string(enums.ReturnStatusPending),
			Comment:   comment,
			ActorRole: string(enums.ActorRoleUser),
			ActorID:   &buyerID,
			At:        now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.VideoURL != nil && strings.TrimSpace(*input.VideoURL) != "" {
		url := strings.TrimSpace(*input.VideoURL)
		ret.VideoURL = &url
		ret.VideoUploadedAt = &now
	}
	if input.Type == enums.ReturnTypeExchange && ret.ExchangeProductID == nil {
		productID := item.ProductID
		ret.ExchangeProductID = &productID
		ret.ExchangeVariantID = item.VariantID
	}
	return ret
}

func (s *service) Get(ctx context.Context, actor types.Actor, returnID uuid.UUID) (*models.Return, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	ret, err := s.load(ctx, s.repo, returnID, false)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, actor, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *service) List(ctx context.Context, actor types.Actor, params ListParams) (*ReturnList, error) {
	query := listQuery{Status: params.Status, Limit: params.Limit}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	switch actor.Role {
	case enums.ActorRoleUser:
		userID := actor.UserID
		query.UserID = &userID
	case enums.ActorRoleSeller:
		sellerID, err := s.sellerScope(ctx, actor)
		if err != nil {
			return nil, err
		}
		query.SellerID = &sellerID
	case enums.ActorRoleAdmin:
	default:
		return nil, s.denied(ctx, "role cannot list returns")
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	page := pagination.Trim(rows, params.Limit, func(r models.Return) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	if page.Items == nil {
		page.Items = []models.Return{}
	}
	return &ReturnList{Returns: page.Items, NextCursor: page.NextCursor}, nil
}

// UploadVideo attaches the buyer's evidence video. The seller review window
// starts at upload.
func (s *service) UploadVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, videoURL string) (*models.Return, error) {
	videoURL = strings.TrimSpace(videoURL)
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	if videoURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "video url required")
	}

	var ret *models.Return
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if ret, err = s.load(ctx, repo, returnID, true); err != nil {
			return err
		}
		if !actor.IsUser() || ret.UserID != actor.UserID {
			return s.denied(ctx, "only the buyer can upload evidence")
		}
		if !ret.IsOpen() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return is no longer open")
		}
		if ret.VideoReviewedBySeller || ret.PenaltyApplied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "evidence video already processed")
		}
		now := s.now()
		ret.VideoURL = &videoURL
		ret.VideoUploadedAt = &now
		return repo.Update(ctx, ret.ID, map[string]any{
			"video_url":         videoURL,
			"video_uploaded_at": now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   ret.SellerID,
		RecipientRole: enums.ActorRoleSeller,
		Type:          enums.NotificationTypeReturn,
		Title:         "Return Video Uploaded",
		Body: fmt.Sprintf("The buyer uploaded an evidence video for %s. Review it within %s to avoid a penalty.",
			itemLabel(ret), s.penaltyWindow),
		Data: returnData(ret),
	})
	return ret, nil
}

// ReviewVideo records the seller's review of the evidence video. A review
// landing after the penalty was applied is still recorded.
func (s *service) ReviewVideo(ctx context.Context, actor types.Actor, returnID uuid.UUID, comments string) (*models.Return, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	sellerID, err := s.sellerScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	var ret *models.Return
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if ret, err = s.load(ctx, repo, returnID, true); err != nil {
			return err
		}
		if err := s.canManage(ctx, actor, sellerID, ret); err != nil {
			return err
		}
		if ret.VideoUploadedAt == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no evidence video uploaded")
		}
		if ret.VideoReviewedBySeller {
			return nil
		}

		now := s.now()
		ret.VideoReviewedBySeller = true
		ret.VideoReviewedAt = &now
		updates := map[string]any{
			"video_reviewed_by_seller": true,
			"video_reviewed_at":        now,
		}
		if c := strings.TrimSpace(comments); c != "" {
			ret.VideoSellerComments = &c
			updates["video_seller_comments"] = c
		}
		return repo.Update(ctx, ret.ID, updates)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *service) load(ctx context.Context, repo Repository, returnID uuid.UUID, forUpdate bool) (*models.Return, error) {
	var (
		ret *models.Return
		err error
	)
	if forUpdate {
		ret, err = repo.FindByIDForUpdate(ctx, returnID)
	} else {
		ret, err = repo.FindByID(ctx, returnID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return")
	}
	return ret, nil
}

func (s *service) canView(ctx context.Context, actor types.Actor, ret *models.Return) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleUser:
		if ret.UserID == actor.UserID {
			return nil
		}
		return s.denied(ctx, "return belongs to another user")
	case enums.ActorRoleSeller:
		sellerID, err := s.sellerScope(ctx, actor)
		if err != nil {
			return err
		}
		return s.canManage(ctx, actor, sellerID, ret)
	}
	return s.denied(ctx, "role cannot view returns")
}

// canManage lets the owning seller and admins act on a return.
func (s *service) canManage(ctx context.Context, actor types.Actor, sellerID uuid.UUID, ret *models.Return) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.IsSeller() && ret.SellerID == sellerID {
		return nil
	}
	return s.denied(ctx, "only the seller or an admin can manage this return")
}

func (s *service) sellerScope(ctx context.Context, actor types.Actor) (uuid.UUID, error) {
	if !actor.IsSeller() {
		return uuid.Nil, nil
	}
	if actor.SellerID != nil && *actor.SellerID != uuid.Nil {
		return *actor.SellerID, nil
	}
	seller, err := s.sellers.SellerForUser(ctx, actor.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	return seller.ID, nil
}

func (s *service) denied(ctx context.Context, reason string) error {
	s.logg.AccessDenied(ctx, reason)
	return pkgerrors.New(pkgerrors.CodeForbidden, "you do not have permission to access this return").
		WithDetails(map[string]any{"reason": reason})
}

func validateCreate(input CreateReturnInput) error {
	if input.OrderID == uuid.Nil || input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and item id required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "type must be return or exchange")
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid return reason")
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}
	if input.PickupAddress != nil {
		if err := input.PickupAddress.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup address")
		}
	}
	return nil
}

func returnData(ret *models.Return) map[string]any {
	return map[string]any{
		"return_id": ret.ID.String(),
		"order_id":  ret.OrderID.String(),
		"status":    string(ret.Status),
	}
}

func itemLabel(ret *models.Return) string {
	return fmt.Sprintf("item %s of order %s", ret.OrderItemID.String()[:8], ret.OrderID.String()[:8])
}
