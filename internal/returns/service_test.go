package returns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/catalog"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	pkgdb "github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notifications.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notifications.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) count(recipient uuid.UUID, typ enums.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, msg := range n.messages {
		if msg.RecipientID == recipient && msg.Type == typ {
			total++
		}
	}
	return total
}

type harness struct {
	db       *gorm.DB
	svc      Service
	clock    *dbtest.Clock
	notifier *recordingNotifier
	seller   models.Seller
	buyer    models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	clock := &dbtest.Clock{Current: time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC)}
	reader, err := catalog.NewReader(catalog.NewRepository(db))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	svc, err := NewService(ServiceParams{
		Repository: NewRepository(db),
		Orders:     orders.NewRepository(db),
		Tx:         pkgdb.NewFromGorm(db),
		Sellers:    reader,
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(db), logger.Nop()),
		Notifier:   notifier,
		Now:        clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		db:       db,
		svc:      svc,
		clock:    clock,
		notifier: notifier,
		seller:   dbtest.SeedSeller(t, db, nil),
		buyer:    dbtest.SeedUser(t, db, enums.ActorRoleUser),
	}
}

func (h *harness) buyerActor() types.Actor {
	return types.Actor{UserID: h.buyer.ID, Role: enums.ActorRoleUser}
}

func (h *harness) sellerActor() types.Actor {
	sellerID := h.seller.ID
	return types.Actor{UserID: h.seller.UserID, Role: enums.ActorRoleSeller, SellerID: &sellerID}
}

func adminActor() types.Actor {
	return types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

// seedOrder stores an order for the harness buyer whose items all carry status.
func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus, items int) *models.Order {
	t.Helper()
	address := types.Address{
		Name: "Asha Rao", Phone: "9876543210", Line1: "12 MG Road",
		City: "Bengaluru", State: "KA", Pincode: "560001", Country: "IN",
	}
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD" + uuid.NewString()[:10],
		UserID:          h.buyer.ID,
		ShippingAddress: address,
		BillingAddress:  address,
		Subtotal:        decimal.NewFromInt(int64(100 * items)),
		Tax:             decimal.Zero,
		ShippingCost:    decimal.Zero,
		Discount:        decimal.Zero,
		Total:           decimal.NewFromInt(int64(100 * items)),
		Status:          status,
		StatusHistory:   types.StatusHistory{},
		CreatedAt:       h.clock.Now().Add(-72 * time.Hour),
	}
	for i := 0; i < items; i++ {
		order.Items = append(order.Items, models.OrderItem{
			ID:            uuid.New(),
			Position:      i,
			ProductID:     uuid.New(),
			SellerID:      h.seller.ID,
			Name:          "Kurta",
			SKU:           "KRT-1",
			Price:         decimal.NewFromInt(100),
			Quantity:      1,
			Tax:           decimal.Zero,
			Total:         decimal.NewFromInt(100),
			SellerAmount:  decimal.NewFromInt(95),
			PlatformFee:   decimal.NewFromInt(5),
			Status:        status,
			StatusHistory: types.StatusHistory{},
		})
	}
	require.NoError(t, orders.NewRepository(h.db).CreateOrder(context.Background(), order))
	return order
}

func (h *harness) fileReturn(t *testing.T, order *models.Order, itemIdx int, typ enums.ReturnType, video bool) *models.Return {
	t.Helper()
	input := CreateReturnInput{
		Actor:       h.buyerActor(),
		OrderID:     order.ID,
		ItemID:      order.Items[itemIdx].ID,
		Type:        typ,
		Reason:      enums.ReturnReasonDamaged,
		Description: "Seam torn on arrival",
		Images:      []string{"https://cdn.example.com/r1.jpg"},
	}
	if video {
		url := "https://cdn.example.com/unboxing.mp4"
		input.VideoURL = &url
	}
	ret, err := h.svc.Create(context.Background(), input)
	require.NoError(t, err)
	return ret
}

func loadItem(t *testing.T, db *gorm.DB, id uuid.UUID) models.OrderItem {
	t.Helper()
	var item models.OrderItem
	require.NoError(t, db.First(&item, "id = ?", id).Error)
	return item
}

func TestCreateReturnFlagsItemAndBlocksDuplicates(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 2)
	ctx := context.Background()

	ret := h.fileReturn(t, order, 0, enums.ReturnTypeReturn, false)
	assert.Equal(t, enums.ReturnStatusPending, ret.Status)
	assert.Equal(t, h.seller.ID, ret.SellerID)
	require.NotNil(t, ret.PickupAddress)
	assert.Equal(t, "Bengaluru", ret.PickupAddress.City)
	require.Len(t, ret.StatusHistory, 1)

	item := loadItem(t, h.db, order.Items[0].ID)
	assert.True(t, item.ReturnRequested)
	require.NotNil(t, item.ReturnID)
	assert.Equal(t, ret.ID, *item.ReturnID)
	require.NotNil(t, item.ReturnReason)
	assert.Equal(t, "damaged", *item.ReturnReason)
	assert.Equal(t, 1, h.notifier.count(h.seller.ID, enums.NotificationTypeReturn))

	var events []models.OutboxEvent
	require.NoError(t, h.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventReturnRequested, events[0].EventType)

	_, err := h.svc.Create(ctx, CreateReturnInput{
		Actor: h.buyerActor(), OrderID: order.ID, ItemID: order.Items[0].ID,
		Type: enums.ReturnTypeExchange, Reason: enums.ReturnReasonSizeIssue, Description: "again",
	})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonReturnExists))

	_, err = h.svc.Create(ctx, CreateReturnInput{
		Actor: types.Actor{UserID: uuid.New(), Role: enums.ActorRoleUser}, OrderID: order.ID, ItemID: order.Items[1].ID,
		Type: enums.ReturnTypeReturn, Reason: enums.ReturnReasonDamaged, Description: "not mine",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	pending := h.seedOrder(t, enums.OrderStatusShipped, 1)
	_, err = h.svc.Create(ctx, CreateReturnInput{
		Actor: h.buyerActor(), OrderID: pending.ID, ItemID: pending.Items[0].ID,
		Type: enums.ReturnTypeReturn, Reason: enums.ReturnReasonDamaged, Description: "early",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Create(ctx, CreateReturnInput{
		Actor: h.buyerActor(), OrderID: order.ID, ItemID: order.Items[1].ID,
		Type: enums.ReturnTypeReturn, Reason: "broken", Description: "bad reason",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRefundWorkflowReturnsItemAndOrder(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 1)
	ret := h.fileReturn(t, order, 0, enums.ReturnTypeReturn, false)
	ctx := context.Background()
	seller := h.sellerActor()

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusRefunded})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidTransition))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: h.buyerActor(), ReturnID: ret.ID, Status: enums.ReturnStatusApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	updated, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusApproved})
	require.NoError(t, err)
	require.NotNil(t, updated.ApprovedBy)
	assert.Equal(t, h.seller.UserID, *updated.ApprovedBy)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusPickupScheduled})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "pickup date is required")

	pickup := h.clock.Now().Add(48 * time.Hour)
	slot := "10:00-13:00"
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusPickupScheduled, PickupDate: &pickup, PickupSlot: &slot,
	})
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusPickedUp})
	require.NoError(t, err)
	condition := enums.ReceivedConditionDamaged
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusReceived, ReceivedCondition: &condition,
	})
	require.NoError(t, err)

	tooMuch := decimal.NewFromInt(500)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: adminActor(), ReturnID: ret.ID, Status: enums.ReturnStatusRefunded, RefundAmount: &tooMuch,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	refunded, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: adminActor(), ReturnID: ret.ID, Status: enums.ReturnStatusRefunded})
	require.NoError(t, err)
	require.NotNil(t, refunded.RefundAmount)
	assert.True(t, refunded.RefundAmount.Equal(decimal.NewFromInt(100)))
	assert.Len(t, refunded.StatusHistory, 6)

	item := loadItem(t, h.db, order.Items[0].ID)
	assert.Equal(t, enums.OrderStatusReturned, item.Status)
	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusReturned, stored.Status)

	var events []models.LedgerEvent
	require.NoError(t, h.db.Where("return_id = ?", ret.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.LedgerEventTypeRefund, events[0].Type)
	assert.True(t, events[0].Amount.Equal(decimal.NewFromInt(100)))

	closed, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: seller, ReturnID: ret.ID, Status: enums.ReturnStatusClosed})
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
}

func TestPartialRefundLeavesOrderDelivered(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 2)
	ret := h.fileReturn(t, order, 1, enums.ReturnTypeReturn, false)
	ctx := context.Background()

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: adminActor(), ReturnID: ret.ID, Status: enums.ReturnStatusApproved})
	require.NoError(t, err)
	pickup := h.clock.Now().Add(24 * time.Hour)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: adminActor(), ReturnID: ret.ID, Status: enums.ReturnStatusPickupScheduled, PickupDate: &pickup})
	require.NoError(t, err)
	for _, status := range []enums.ReturnStatus{enums.ReturnStatusPickedUp, enums.ReturnStatusReceived, enums.ReturnStatusRefunded} {
		_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: adminActor(), ReturnID: ret.ID, Status: status})
		require.NoError(t, err)
	}

	assert.Equal(t, enums.OrderStatusReturned, loadItem(t, h.db, order.Items[1].ID).Status)
	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
}

func TestExchangeCannotBeRefunded(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 1)
	ret := h.fileReturn(t, order, 0, enums.ReturnTypeExchange, false)
	require.NotNil(t, ret.ExchangeProductID)
	assert.Equal(t, order.Items[0].ProductID, *ret.ExchangeProductID)
	ctx := context.Background()

	pickup := h.clock.Now().Add(24 * time.Hour)
	steps := []UpdateStatusInput{
		{Status: enums.ReturnStatusApproved},
		{Status: enums.ReturnStatusPickupScheduled, PickupDate: &pickup},
		{Status: enums.ReturnStatusPickedUp},
		{Status: enums.ReturnStatusReceived},
	}
	for _, step := range steps {
		step.Actor, step.ReturnID = h.sellerActor(), ret.ID
		_, err := h.svc.UpdateStatus(ctx, step)
		require.NoError(t, err)
	}

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: h.sellerActor(), ReturnID: ret.ID, Status: enums.ReturnStatusRefunded})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	tracking := "EXC-42"
	exchanged, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: h.sellerActor(), ReturnID: ret.ID, Status: enums.ReturnStatusExchanged, ExchangeTrackingNumber: &tracking,
	})
	require.NoError(t, err)
	require.NotNil(t, exchanged.ExchangeShippedAt)
	assert.Equal(t, "EXC-42", *exchanged.ExchangeTrackingNumber)
	assert.Equal(t, enums.OrderStatusDelivered, loadItem(t, h.db, order.Items[0].ID).Status)
}

func TestRejectRequiresReason(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 1)
	ret := h.fileReturn(t, order, 0, enums.ReturnTypeReturn, false)
	ctx := context.Background()

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: h.sellerActor(), ReturnID: ret.ID, Status: enums.ReturnStatusRejected})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	reason := "Item shows wear"
	rejected, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor: h.sellerActor(), ReturnID: ret.ID, Status: enums.ReturnStatusRejected, RejectionReason: &reason,
	})
	require.NoError(t, err)
	require.NotNil(t, rejected.RejectedAt)
	assert.Equal(t, "Item shows wear", *rejected.RejectionReason)
	assert.Equal(t, 1, h.notifier.count(h.buyer.ID, enums.NotificationTypeReturn))

	again := h.fileReturn(t, order, 0, enums.ReturnTypeExchange, false)
	assert.NotEqual(t, ret.ID, again.ID, "a rejected return frees the item")
}

func TestComplaintLifecycle(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 1)
	ret := h.fileReturn(t, order, 0, enums.ReturnTypeReturn, false)
	ctx := context.Background()

	_, err := h.svc.FileComplaint(ctx, ComplaintInput{Actor: h.buyerActor(), ReturnID: ret.ID, Complaint: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	filed, err := h.svc.FileComplaint(ctx, ComplaintInput{
		Actor: h.sellerActor(), ReturnID: ret.ID, Complaint: "Video shows a different item", Reason: "fraud",
	})
	require.NoError(t, err)
	require.NotNil(t, filed.SellerComplaintStatus)
	assert.Equal(t, enums.ComplaintStatusPending, *filed.SellerComplaintStatus)

	_, err = h.svc.FileComplaint(ctx, ComplaintInput{Actor: h.sellerActor(), ReturnID: ret.ID, Complaint: "again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.ResolveComplaint(ctx, ResolveComplaintInput{Actor: h.sellerActor(), ReturnID: ret.ID, Status: enums.ComplaintStatusResolved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	resolved, err := h.svc.ResolveComplaint(ctx, ResolveComplaintInput{
		Actor: adminActor(), ReturnID: ret.ID, Status: enums.ComplaintStatusResolved, Resolution: "Penalty waived",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ComplaintStatusResolved, *resolved.SellerComplaintStatus)
	assert.Equal(t, "Penalty waived", *resolved.SellerComplaintResolution)
}

func TestGetAndListScoping(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, 3)
	ctx := context.Background()
	first := h.fileReturn(t, order, 0, enums.ReturnTypeReturn, false)
	h.clock.Advance(time.Minute)
	h.fileReturn(t, order, 1, enums.ReturnTypeReturn, false)
	h.clock.Advance(time.Minute)
	h.fileReturn(t, order, 2, enums.ReturnTypeExchange, false)

	got, err := h.svc.Get(ctx, h.sellerActor(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	other := dbtest.SeedSeller(t, h.db, nil)
	otherID := other.ID
	_, err = h.svc.Get(ctx, types.Actor{UserID: other.UserID, Role: enums.ActorRoleSeller, SellerID: &otherID}, first.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	page, err := h.svc.List(ctx, h.buyerActor(), ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Returns, 2)
	require.NotEmpty(t, page.NextCursor)
	rest, err := h.svc.List(ctx, h.buyerActor(), ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Returns, 1)
	assert.Equal(t, first.ID, rest.Returns[0].ID)

	empty, err := h.svc.List(ctx, types.Actor{UserID: other.UserID, Role: enums.ActorRoleSeller, SellerID: &otherID}, ListParams{})
	require.NoError(t, err)
	assert.Empty(t, empty.Returns)
}
