package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
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

type sellerResolver interface {
	SellerForUser(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
}

// orderStore is the slice of the orders repository returns need to touch the
// item a return is filed against.
type orderStore interface {
	WithTx(tx *gorm.DB) orders.Repository
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// Repository defines persistence operations for returns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ret *models.Return) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Return, error)
	FindOpenForItem(ctx context.Context, itemID uuid.UUID) (*models.Return, error)
	List(ctx context.Context, query listQuery) ([]models.Return, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	PenaltyCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Return, error)
	ApplyPenalty(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}
