package settlements

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

func (n *recordingNotifier) count(recipient uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, msg := range n.messages {
		if msg.RecipientID == recipient && msg.Type == enums.NotificationTypeSettlement {
			total++
		}
	}
	return total
}

type harness struct {
	db       *gorm.DB
	svc      Service
	ledger   ledger.Service
	clock    *dbtest.Clock
	notifier *recordingNotifier
	buyer    models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	clock := &dbtest.Clock{Current: time.Date(2026, 7, 6, 2, 0, 0, 0, time.UTC)}
	reader, err := catalog.NewReader(catalog.NewRepository(db))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	svc, err := NewService(ServiceParams{
		Repository: NewRepository(db),
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
		ledger:   ledgerSvc,
		clock:    clock,
		notifier: notifier,
		buyer:    dbtest.SeedUser(t, db, enums.ActorRoleUser),
	}
}

// seedDelivered stores an order delivered `age` ago with one item per seller
// amount. Item statuses default to delivered.
func (h *harness) seedDelivered(t *testing.T, sellerID uuid.UUID, age time.Duration, amounts ...string) *models.Order {
	t.Helper()
	deliveredAt := h.clock.Now().Add(-age)
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD" + uuid.NewString()[:10],
		UserID:        h.buyer.ID,
		Subtotal:      decimal.Zero,
		Tax:           decimal.Zero,
		ShippingCost:  decimal.Zero,
		Discount:      decimal.Zero,
		Total:         decimal.Zero,
		Status:        enums.OrderStatusDelivered,
		StatusHistory: types.StatusHistory{},
		DeliveredAt:   &deliveredAt,
		CreatedAt:     deliveredAt.Add(-72 * time.Hour),
	}
	for i, amount := range amounts {
		sellerAmount := decimal.RequireFromString(amount)
		order.Items = append(order.Items, models.OrderItem{
			ID:            uuid.New(),
			Position:      i,
			ProductID:     uuid.New(),
			SellerID:      sellerID,
			Name:          "Saree",
			SKU:           "SAR-1",
			Price:         sellerAmount,
			Quantity:      1,
			Tax:           decimal.Zero,
			Total:         sellerAmount,
			SellerAmount:  sellerAmount,
			PlatformFee:   decimal.Zero,
			Status:        enums.OrderStatusDelivered,
			StatusHistory: types.StatusHistory{},
			DeliveredAt:   &deliveredAt,
		})
	}
	require.NoError(t, orders.NewRepository(h.db).CreateOrder(context.Background(), order))
	return order
}

func (h *harness) loadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.db.Preload("Items").First(&order, "id = ?", id).Error)
	return order
}

func (h *harness) settlementsFor(t *testing.T, sellerID uuid.UUID) []models.Settlement {
	t.Helper()
	var rows []models.Settlement
	require.NoError(t, h.db.Where("seller_id = ?", sellerID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func sellerActor(seller models.Seller) types.Actor {
	sellerID := seller.ID
	return types.Actor{UserID: seller.UserID, Role: enums.ActorRoleSeller, SellerID: &sellerID}
}

func adminActor() types.Actor {
	return types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func TestSweepBatchesAgedItemsPerSeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := dbtest.SeedSeller(t, h.db, nil)
	second := dbtest.SeedSeller(t, h.db, nil)

	aged := h.seedDelivered(t, first.ID, 8*24*time.Hour, "95", "47.50")
	fresh := h.seedDelivered(t, first.ID, 3*24*time.Hour, "20")
	other := h.seedDelivered(t, second.ID, 10*24*time.Hour, "190", "30")
	require.NoError(t, h.db.Model(&models.OrderItem{}).
		Where("id = ?", other.Items[1].ID).
		UpdateColumn("status", enums.OrderStatusReturned).Error)

	result, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sellers: 2, Settlements: 2, Items: 3}, result)

	firstRows := h.settlementsFor(t, first.ID)
	require.Len(t, firstRows, 1)
	settlement := firstRows[0]
	assert.Equal(t, enums.SettlementStatusPending, settlement.Status)
	assert.True(t, settlement.Amount.Equal(decimal.RequireFromString("142.50")), settlement.Amount.String())
	assert.Equal(t, 2, settlement.ItemCount)
	assert.ElementsMatch(t, []uuid.UUID{aged.ID}, []uuid.UUID(settlement.OrderIDs))
	assert.Equal(t, h.clock.Now().Add(-DefaultHoldPeriod), settlement.PeriodEnd.UTC())

	stored := h.loadOrder(t, aged.ID)
	assert.True(t, stored.IsSettled)
	for _, item := range stored.Items {
		assert.True(t, item.IsSettled)
		require.NotNil(t, item.SettlementID)
		assert.Equal(t, settlement.ID, *item.SettlementID)
	}
	assert.False(t, h.loadOrder(t, fresh.ID).IsSettled)

	otherRows := h.settlementsFor(t, second.ID)
	require.Len(t, otherRows, 1)
	assert.True(t, otherRows[0].Amount.Equal(decimal.NewFromInt(190)))
	otherStored := h.loadOrder(t, other.ID)
	assert.True(t, otherStored.IsSettled, "returned items do not hold the order back")
	assert.False(t, otherStored.Items[1].IsSettled)

	created, err := h.ledger.HasEvent(ctx, settlement.ID, enums.LedgerEventTypeSettlementCreated)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, h.notifier.count(first.ID))
	assert.Equal(t, 1, h.notifier.count(second.ID))

	var events int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventSettlementCreated).
		Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestSweepRerunCreatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, h.db, nil)
	h.seedDelivered(t, seller.ID, 8*24*time.Hour, "95")
	fresh := h.seedDelivered(t, seller.ID, 2*24*time.Hour, "40")

	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	result, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Settlements)
	require.Len(t, h.settlementsFor(t, seller.ID), 1)

	h.clock.Advance(6 * 24 * time.Hour)
	result, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Settlements)
	rows := h.settlementsFor(t, seller.ID)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].Amount.Equal(decimal.NewFromInt(40)))
	assert.True(t, h.loadOrder(t, fresh.ID).IsSettled)
}

func TestSweepHoldsItemsWithOpenReturn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, h.db, nil)
	order := h.seedDelivered(t, seller.ID, 9*24*time.Hour, "95", "60")

	ret := models.Return{
		ID:            uuid.New(),
		OrderID:       order.ID,
		OrderItemID:   order.Items[0].ID,
		UserID:        h.buyer.ID,
		SellerID:      seller.ID,
		ProductID:     order.Items[0].ProductID,
		Type:          enums.ReturnTypeReturn,
		Reason:        enums.ReturnReasonDamaged,
		Description:   "Torn",
		Status:        enums.ReturnStatusPending,
		StatusHistory: types.StatusHistory{},
	}
	require.NoError(t, h.db.Create(&ret).Error)

	result, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Items)
	assert.False(t, h.loadOrder(t, order.ID).IsSettled)

	require.NoError(t, h.db.Model(&models.Return{}).
		Where("id = ?", ret.ID).
		UpdateColumn("status", enums.ReturnStatusRejected).Error)
	result, err = h.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Items)
	assert.True(t, h.loadOrder(t, order.ID).IsSettled)
}

func TestUpdateStatusRecordsPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, h.db, nil)
	h.seedDelivered(t, seller.ID, 8*24*time.Hour, "250")
	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	settlement := h.settlementsFor(t, seller.ID)[0]

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:        sellerActor(seller),
		SettlementID: settlement.ID,
		Status:       enums.SettlementStatusPaid,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	failed, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:        adminActor(),
		SettlementID: settlement.ID,
		Status:       enums.SettlementStatusFailed,
		Notes:        "bank rejected",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusFailed, failed.Status)

	for _, status := range []enums.SettlementStatus{enums.SettlementStatusProcessing, enums.SettlementStatusFailed, enums.SettlementStatusProcessing} {
		_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{Actor: adminActor(), SettlementID: settlement.ID, Status: status})
		require.NoError(t, err, status)
	}

	h.clock.Advance(time.Hour)
	paid, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:          adminActor(),
		SettlementID:   settlement.ID,
		Status:         enums.SettlementStatusPaid,
		TransactionRef: " UTR-99812 ",
	})
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, h.clock.Now(), *paid.PaidAt)
	require.NotNil(t, paid.TransactionRef)
	assert.Equal(t, "UTR-99812", *paid.TransactionRef)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:        adminActor(),
		SettlementID: settlement.ID,
		Status:       enums.SettlementStatusFailed,
	})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonAlreadySettled))

	events, err := h.ledger.ListForSeller(ctx, seller.ID)
	require.NoError(t, err)
	kinds := make([]enums.LedgerEventType, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Type)
	}
	assert.ElementsMatch(t, []enums.LedgerEventType{
		enums.LedgerEventTypeSettlementCreated,
		enums.LedgerEventTypeSettlementFailed,
		enums.LedgerEventTypeSettlementPaid,
	}, kinds)
}

func TestUpdateStatusRejectsSkippingBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, h.db, nil)
	h.seedDelivered(t, seller.ID, 8*24*time.Hour, "10")
	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	settlement := h.settlementsFor(t, seller.ID)[0]

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:        adminActor(),
		SettlementID: settlement.ID,
		Status:       enums.SettlementStatusPending,
	})
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidTransition))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{
		Actor:        adminActor(),
		SettlementID: uuid.New(),
		Status:       enums.SettlementStatusPaid,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetAndListAreSellerScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := dbtest.SeedSeller(t, h.db, nil)
	second := dbtest.SeedSeller(t, h.db, nil)
	h.seedDelivered(t, first.ID, 8*24*time.Hour, "10")
	h.seedDelivered(t, second.ID, 8*24*time.Hour, "20")
	_, err := h.svc.Sweep(ctx)
	require.NoError(t, err)
	own := h.settlementsFor(t, first.ID)[0]
	foreign := h.settlementsFor(t, second.ID)[0]

	got, err := h.svc.Get(ctx, sellerActor(first), own.ID)
	require.NoError(t, err)
	assert.Equal(t, own.ID, got.ID)
	_, err = h.svc.Get(ctx, sellerActor(first), foreign.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = h.svc.Get(ctx, types.Actor{UserID: h.buyer.ID, Role: enums.ActorRoleUser}, own.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	list, err := h.svc.List(ctx, sellerActor(first), ListParams{})
	require.NoError(t, err)
	require.Len(t, list.Settlements, 1)
	assert.Equal(t, own.ID, list.Settlements[0].ID)

	list, err = h.svc.List(ctx, adminActor(), ListParams{})
	require.NoError(t, err)
	assert.Len(t, list.Settlements, 2)

	list, err = h.svc.List(ctx, adminActor(), ListParams{SellerID: &second.ID})
	require.NoError(t, err)
	require.Len(t, list.Settlements, 1)
	assert.Equal(t, foreign.ID, list.Settlements[0].ID)

	paid := enums.SettlementStatusPaid
	list, err = h.svc.List(ctx, adminActor(), ListParams{Status: &paid})
	require.NoError(t, err)
	assert.Empty(t, list.Settlements)
}
