package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/catalog"
	"github.com/angelmondragon/marketplace-orders/internal/coupons"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/pricing"
	pkgdb "github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

const (
	defaultEstimatedDeliveryDays = 7
	defaultArchiveAfterMonths    = 3
	defaultInvoiceBasePath       = "/invoices"
	orderNumberAttempts          = 3
	orderNumberConstraint        = "ux_orders_order_number"
	defaultCancellationReason    = "No reason provided"
)

var errOrderNumberTaken = errors.New("order number already taken")

// Service owns order creation, the order/item state machine and order queries.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Quote(ctx context.Context, input QuoteInput) (*QuotePreview, error)
	Get(ctx context.Context, actor types.Actor, orderID uuid.UUID, sellerItemsOnly bool) (*models.Order, error)
	List(ctx context.Context, actor types.Actor, params ListParams) (*OrderList, error)
	UpdateOrderStatus(ctx context.Context, input UpdateOrderStatusInput) (*models.Order, error)
	UpdateItemStatus(ctx context.Context, input UpdateItemStatusInput) (*models.Order, error)
	GenerateInvoice(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*Invoice, error)
	Stats(ctx context.Context, actor types.Actor, params StatsParams) (*Stats, error)
	ArchiveTerminal(ctx context.Context) (int64, error)
}

type service struct {
	repo                  Repository
	tx                    txRunner
	catalog               catalog.Reader
	coupons               coupons.Validator
	engine                pricing.Engine
	outbox                outboxPublisher
	notifier              notifier
	metrics               *metrics.OrderMetrics
	logg                  *logger.Logger
	now                   func() time.Time
	orderNumber           func(now time.Time) string
	estimatedDeliveryDays int
	archiveAfterMonths    int
	invoiceBasePath       string
}

// ServiceParams wires the orders service. Metrics, Logger, Now and the
// numeric settings fall back to defaults when unset.
type ServiceParams struct {
	Repository            Repository
	Tx                    txRunner
	Catalog               catalog.Reader
	Coupons               coupons.Validator
	Engine                pricing.Engine
	Outbox                outboxPublisher
	Notifier              notifier
	Metrics               *metrics.OrderMetrics
	Logger                *logger.Logger
	Now                   func() time.Time
	EstimatedDeliveryDays int
	ArchiveAfterMonths    int
	InvoiceBasePath       string
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}

	svc := &service{
		repo:                  params.Repository,
		tx:                    params.Tx,
		catalog:               params.Catalog,
		coupons:               params.Coupons,
		engine:                params.Engine,
		outbox:                params.Outbox,
		notifier:              params.Notifier,
		metrics:               params.Metrics,
		logg:                  params.Logger,
		now:                   params.Now,
		orderNumber:           newOrderNumber,
		estimatedDeliveryDays: params.EstimatedDeliveryDays,
		archiveAfterMonths:    params.ArchiveAfterMonths,
		invoiceBasePath:       strings.TrimRight(params.InvoiceBasePath, "/"),
	}
	if svc.logg == nil {
		svc.logg = logger.Nop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.estimatedDeliveryDays <= 0 {
		svc.estimatedDeliveryDays = defaultEstimatedDeliveryDays
	}
	if svc.archiveAfterMonths <= 0 {
		svc.archiveAfterMonths = defaultArchiveAfterMonths
	}
	if svc.invoiceBasePath == "" {
		svc.invoiceBasePath = defaultInvoiceBasePath
	}
	return svc, nil
}

// Create prices the cart, commits the coupon, reserves stock and persists the
// order in one transaction. Notifications go out only after commit.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	var (
		order *models.Order
		err   error
	)
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order, err = s.createOnce(ctx, input)
		if !errors.Is(err, errOrderNumberTaken) {
			break
		}
		s.logg.Warn(ctx, "order number collision, retrying")
	}
	if err != nil {
		if errors.Is(err, errOrderNumberTaken) {
			err = pkgerrors.New(pkgerrors.CodeConflict, "could not allocate an order number")
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Reason() != "" {
			s.metrics.IncRejected(string(typed.Reason()))
		}
		return nil, err
	}

	s.metrics.IncCreated()
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order created")
	s.notifyCreated(ctx, order)
	return order, nil
}

func (s *service) createOnce(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reader := s.catalog.WithTx(tx)

		quote, err := s.price(ctx, reader, input.Items)
		if err != nil {
			return err
		}

		var offer *models.Offer
		if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
			validator := s.coupons.WithTx(tx)
			outcome, err := validator.Validate(ctx, *input.CouponCode, couponContext(input.UserID, quote))
			if err != nil {
				return err
			}
			quote.Apply(outcome.Adjustment)
			if err := validator.Commit(ctx, outcome.Offer, input.UserID); err != nil {
				return err
			}
			offer = &outcome.Offer
		}

		now := s.now()
		order = s.buildOrder(input, quote, offer, now)

		for _, line := range quote.Lines {
			if err := reader.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			if pkgdb.IsUniqueViolation(err, orderNumberConstraint) {
				return errOrderNumberTaken
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.ActorRoleUser)},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				SellerIDs:   order.SellerIDs(),
				Total:       order.Total,
				CouponCode:  order.CouponCode,
			},
			OccurredAt: now,
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Quote prices items and previews a coupon without reserving stock or
// recording coupon usage.
func (s *service) Quote(ctx context.Context, input QuoteInput) (*QuotePreview, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	quote, err := s.price(ctx, s.catalog, input.Items)
	if err != nil {
		return nil, err
	}

	preview := &QuotePreview{}
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		outcome, err := s.coupons.Validate(ctx, *input.CouponCode, couponContext(input.UserID, quote))
		if err != nil {
			return nil, err
		}
		quote.Apply(outcome.Adjustment)
		code := outcome.Offer.Code
		preview.CouponCode = &code
		preview.FreeShipping = outcome.Adjustment.FreeShipping
	}

	preview.Subtotal = quote.Subtotal
	preview.Tax = quote.Tax
	preview.ShippingCost = quote.ShippingCost
	preview.Discount = quote.Discount
	preview.Total = quote.Total
	return preview, nil
}

func (s *service) price(ctx context.Context, reader catalog.Reader, items []LineItemInput) (*pricing.Quote, error) {
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	snapshots, err := reader.Snapshots(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		snap := snapshots[item.ProductID]
		lines = append(lines, pricing.Line{
			Product:   snap.Product,
			Seller:    snap.Seller,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return s.engine.Price(lines)
}

func (s *service) buildOrder(input CreateOrderInput, quote *pricing.Quote, offer *models.Offer, now time.Time) *models.Order {
	shipping := input.ShippingAddress.Normalized()
	billing := shipping
	if input.BillingAddress != nil {
		billing = input.BillingAddress.Normalized()
	}
	gateway := enums.PaymentGatewayRazorpay
	if input.PaymentMethod == enums.PaymentMethodCOD {
		gateway = enums.PaymentGatewayCOD
	}
	estimated := now.AddDate(0, 0, s.estimatedDeliveryDays)
	buyerID := input.UserID

	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     s.orderNumber(now),
		UserID:          input.UserID,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Payment: types.Payment{
			Method:   string(input.PaymentMethod),
			Amount:   quote.Total,
			Currency: types.DefaultCurrency,
			Status:   string(enums.PaymentStatusPending),
			Gateway:  string(gateway),
		},
		Subtotal:     quote.Subtotal,
		Tax:          quote.Tax,
		ShippingCost: quote.ShippingCost,
		Discount:     quote.Discount,
		Total:        quote.Total,
		Status:       enums.OrderStatusPending,
		StatusHistory: types.StatusHistory{{
			Status:    string(enums.OrderStatusPending),
			Comment:   "Order placed",
			ActorRole: string(enums.ActorRoleUser),
			ActorID:   &buyerID,
			At:        now,
		}},
		Notes:                 input.Notes,
		IsGift:                input.IsGift,
		GiftMessage:           input.GiftMessage,
		EstimatedDeliveryDate: &estimated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if offer != nil {
		id, code := offer.ID, offer.Code
		order.CouponID = &id
		order.CouponCode = &code
	}

	order.Items = make([]models.OrderItem, 0, len(quote.Lines))
	for i, line := range quote.Lines {
		item := models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			Position:     i,
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			SellerID:     line.SellerID,
			CategoryID:   line.CategoryID,
			Name:         line.Name,
			SKU:          line.SKU,
			Price:        line.Price,
			Quantity:     line.Quantity,
			Tax:          line.Tax,
			Total:        line.Total,
			SellerAmount: line.SellerAmount,
			PlatformFee:  line.PlatformFee,
			Status:       enums.OrderStatusPending,
			StatusHistory: types.StatusHistory{{
				Status:    string(enums.OrderStatusPending),
				Comment:   "Order placed",
				ActorRole: string(enums.ActorRoleSystem),
				At:        now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if line.Image != "" {
			image := line.Image
			item.Image = &image
		}
		order.Items = append(order.Items, item)
	}
	return order
}

func (s *service) notifyCreated(ctx context.Context, order *models.Order) {
	data := orderData(order)
	s.notifier.Send(ctx, notifications.Message{
		RecipientID:   order.UserID,
		RecipientRole: enums.ActorRoleUser,
		Type:          enums.NotificationTypeOrder,
		Title:         "Order Placed Successfully",
		Body:          fmt.Sprintf("Your order #%s has been placed successfully.", order.OrderNumber),
		Data:          data,
		SMS:           true,
	})

	counts := map[uuid.UUID]int{}
	for _, item := range order.Items {
		counts[item.SellerID]++
	}
	for _, sellerID := range order.SellerIDs() {
		s.notifier.Send(ctx, notifications.Message{
			RecipientID:   sellerID,
			RecipientRole: enums.ActorRoleSeller,
			Type:          enums.NotificationTypeOrder,
			Title:         "New Order Received",
			Body:          fmt.Sprintf("You have received a new order #%s with %d item(s).", order.OrderNumber, counts[sellerID]),
			Data:          data,
		})
	}
}

func validateCreate(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateItems(input.Items); err != nil {
		return err
	}
	if input.ShippingAddress == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if input.BillingAddress != nil {
		if err := input.BillingAddress.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing address")
		}
	}
	if input.PaymentMethod == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	return nil
}

func validateItems(items []LineItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
	}
	return nil
}

func couponContext(userID uuid.UUID, quote *pricing.Quote) coupons.OrderContext {
	ctx := coupons.OrderContext{
		UserID:    userID,
		Subtotal:  quote.Subtotal,
		SellerIDs: quote.SellerIDs(),
	}
	seenCategory := map[uuid.UUID]struct{}{}
	for _, line := range quote.Lines {
		ctx.ProductIDs = append(ctx.ProductIDs, line.ProductID)
		if line.CategoryID == nil {
			continue
		}
		if _, ok := seenCategory[*line.CategoryID]; ok {
			continue
		}
		seenCategory[*line.CategoryID] = struct{}{}
		ctx.CategoryIDs = append(ctx.CategoryIDs, *line.CategoryID)
	}
	return ctx
}

func orderData(order *models.Order) map[string]any {
	return map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
	}
}

// newOrderNumber is ORD + unix millis + a three digit suffix. The unique
// index on order_number is what actually guarantees uniqueness.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%d%03d", now.UnixMilli(), rand.IntN(1000))
}
