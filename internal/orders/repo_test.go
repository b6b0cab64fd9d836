package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

func seedOrder(t *testing.T, repo Repository, userID, sellerID uuid.UUID, createdAt time.Time, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD" + uuid.NewString()[:8],
		UserID:        userID,
		Subtotal:      dec("10"),
		Tax:           dec("0"),
		ShippingCost:  dec("0"),
		Discount:      dec("0"),
		Total:         dec("10"),
		Status:        status,
		StatusHistory: types.StatusHistory{},
		CreatedAt:     createdAt,
		Items: []models.OrderItem{{
			ID:            uuid.New(),
			ProductID:     uuid.New(),
			SellerID:      sellerID,
			Name:          "Widget",
			SKU:           "W-1",
			Price:         dec("10"),
			Quantity:      1,
			Tax:           dec("0"),
			Total:         dec("10"),
			SellerAmount:  dec("9.5"),
			PlatformFee:   dec("0.5"),
			Status:        status,
			StatusHistory: types.StatusHistory{},
		}},
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	return order
}

func TestRepositoryGuardsAreConditional(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	order := seedOrder(t, repo, uuid.New(), uuid.New(), time.Now().UTC(), enums.OrderStatusCancelled)
	itemID := order.Items[0].ID

	claimed, err := repo.MarkStockRestored(ctx, itemID)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = repo.MarkStockRestored(ctx, itemID)
	require.NoError(t, err)
	require.False(t, claimed)

	at := time.Now().UTC()
	created, err := repo.SetInvoice(ctx, order.ID, "INV-1", "/invoices/INV-1.pdf", at)
	require.NoError(t, err)
	require.True(t, created)
	created, err = repo.SetInvoice(ctx, order.ID, "INV-2", "/invoices/INV-2.pdf", at)
	require.NoError(t, err)
	require.False(t, created)

	loaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.InvoiceNumber)
	require.Equal(t, "INV-1", *loaded.InvoiceNumber)
	require.Len(t, loaded.Items, 1)
	require.True(t, loaded.Items[0].StockRestored)
}

func TestRepositoryListFiltersBySellerAndStatus(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	buyer, seller := uuid.New(), uuid.New()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	seedOrder(t, repo, buyer, seller, base, enums.OrderStatusPending)
	seedOrder(t, repo, buyer, uuid.New(), base.Add(time.Hour), enums.OrderStatusPending)
	delivered := seedOrder(t, repo, uuid.New(), seller, base.Add(2*time.Hour), enums.OrderStatusDelivered)

	rows, err := repo.ListOrders(ctx, listQuery{SellerID: &seller})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, delivered.ID, rows[0].ID)

	status := enums.OrderStatusDelivered
	rows, err = repo.ListOrders(ctx, listQuery{Status: &status})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = repo.ListOrders(ctx, listQuery{UserID: &buyer})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	archived, err := repo.ArchiveBefore(ctx, base.Add(24*time.Hour), enums.ArchivableOrderStatuses())
	require.NoError(t, err)
	require.Equal(t, int64(1), archived)
	rows, err = repo.ListOrders(ctx, listQuery{SellerID: &seller})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rows, err = repo.ListOrders(ctx, listQuery{SellerID: &seller, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	stats, err := repo.StatsRows(ctx, statsQuery{SellerID: &seller, From: base})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.True(t, stats[0].Amount.Equal(dec("9.5")))
}
