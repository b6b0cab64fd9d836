package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

// Snapshot is the catalog state a line item is priced against.
type Snapshot struct {
	Product models.Product
	Seller  models.Seller
}

// Reader resolves order-time snapshots and performs the stock side effects of
// order creation and cancellation.
type Reader interface {
	WithTx(tx *gorm.DB) Reader
	Snapshots(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Snapshot, error)
	SellerForUser(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, productID uuid.UUID, qty int) error
}

type reader struct {
	repo Repository
}

// NewReader wires the snapshot reader over a catalog repository.
func NewReader(repo Repository) (Reader, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &reader{repo: repo}, nil
}

func (r *reader) WithTx(tx *gorm.DB) Reader {
	return &reader{repo: r.repo.WithTx(tx)}
}

// Snapshots loads every product and its seller. A missing product or seller is
// a NotFound error for the whole batch.
func (r *reader) Snapshots(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Snapshot, error) {
	products, err := r.repo.FindProducts(ctx, dedupe(productIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	sellerIDs := make([]uuid.UUID, 0, len(products))
	for _, id := range productIDs {
		product, ok := products[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": id.String()})
		}
		sellerIDs = append(sellerIDs, product.SellerID)
	}

	sellers, err := r.repo.FindSellers(ctx, dedupe(sellerIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sellers")
	}

	out := make(map[uuid.UUID]Snapshot, len(products))
	for id, product := range products {
		seller, ok := sellers[product.SellerID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found").
				WithDetails(map[string]any{"seller_id": product.SellerID.String()})
		}
		out[id] = Snapshot{Product: product, Seller: seller}
	}
	return out, nil
}

func (r *reader) SellerForUser(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	seller, err := r.repo.FindSellerByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	return seller, nil
}

func (r *reader) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if err := r.repo.DecrementStock(ctx, productID, qty); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			return pkgerrors.Rejection(pkgerrors.CodeConflict, pkgerrors.ReasonOutOfStock, "insufficient stock").
				WithDetails(map[string]any{"reason": string(pkgerrors.ReasonOutOfStock), "product_id": productID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	return nil
}

func (r *reader) Restore(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 1 {
		return nil
	}
	if err := r.repo.RestoreStock(ctx, productID, qty); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
