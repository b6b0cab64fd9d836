package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Send(ctx context.Context, msg notifications.Message)
}

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, query listQuery) ([]models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	MarkStockRestored(ctx context.Context, itemID uuid.UUID) (bool, error)
	SetInvoice(ctx context.Context, orderID uuid.UUID, number, url string, at time.Time) (bool, error)
	StatsRows(ctx context.Context, query statsQuery) ([]statsRow, error)
	ArchiveBefore(ctx context.Context, cutoff time.Time, statuses []enums.OrderStatus) (int64, error)
}
