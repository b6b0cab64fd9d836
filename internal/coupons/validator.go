package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/internal/pricing"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

// OrderContext is what the validator knows about the order being placed.
type OrderContext struct {
	UserID      uuid.UUID
	Subtotal    decimal.Decimal
	SellerIDs   []uuid.UUID
	ProductIDs  []uuid.UUID
	CategoryIDs []uuid.UUID
}

// Outcome is an accepted coupon and the adjustment it grants.
type Outcome struct {
	Offer      models.Offer
	Adjustment pricing.Adjustment
}

// Validator checks coupon eligibility and commits usage.
type Validator interface {
	WithTx(tx *gorm.DB) Validator
	Validate(ctx context.Context, code string, order OrderContext) (*Outcome, error)
	Commit(ctx context.Context, offer models.Offer, userID uuid.UUID) error
}

type validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator wires the validator. A nil clock defaults to UTC wall time.
func NewValidator(repo Repository, now func() time.Time) (Validator, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &validator{repo: repo, now: now}, nil
}

func (v *validator) WithTx(tx *gorm.DB) Validator {
	return &validator{repo: v.repo.WithTx(tx), now: v.now}
}

// Validate runs the eligibility checks in order and stops at the first failure.
// It never mutates the offer, so it doubles as the preview.
func (v *validator) Validate(ctx context.Context, code string, order OrderContext) (*Outcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}

	offer, err := v.repo.FindByCode(ctx, code)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	now := v.now()
	if offer == nil || !offer.IsActive || now.Before(offer.StartDate) || now.After(offer.EndDate) {
		return nil, reject(pkgerrors.ReasonInvalidOrExpiredCoupon, "invalid or expired coupon code")
	}

	if offer.MinOrderValue != nil && order.Subtotal.LessThan(*offer.MinOrderValue) {
		return nil, reject(pkgerrors.ReasonMinOrderValueNotMet,
			fmt.Sprintf("minimum order value for this coupon is %s", offer.MinOrderValue.StringFixed(2)))
	}

	if err := v.checkScope(ctx, *offer, order); err != nil {
		return nil, err
	}

	if offer.UsageLimit != models.UnlimitedUsage && offer.UsageCount >= offer.UsageLimit {
		return nil, reject(pkgerrors.ReasonUsageLimitReached, "this coupon has reached its usage limit")
	}

	if offer.PerUserLimit != models.UnlimitedUsage {
		usage, err := v.repo.FindUsage(ctx, offer.ID, order.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon usage")
		}
		if usageCount(usage) >= offer.PerUserLimit {
			return nil, reject(pkgerrors.ReasonPerUserLimitReached, "you have already used this coupon the maximum number of times")
		}
	}

	return &Outcome{Offer: *offer, Adjustment: Discount(*offer, order.Subtotal)}, nil
}

func (v *validator) checkScope(ctx context.Context, offer models.Offer, order OrderContext) error {
	switch offer.ApplicableFor {
	case enums.OfferAudienceNewUsers, enums.OfferAudienceExistingUsers:
		count, err := v.repo.CountUserOrders(ctx, order.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count user orders")
		}
		if offer.ApplicableFor == enums.OfferAudienceNewUsers && count > 0 {
			return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon is only for new users")
		}
		if offer.ApplicableFor == enums.OfferAudienceExistingUsers && count == 0 {
			return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon is only for returning customers")
		}
	case enums.OfferAudienceSpecificUsers:
		if !offer.SpecificUsers.Contains(order.UserID) {
			return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon is not applicable for your account")
		}
	}

	if len(offer.SpecificProducts) > 0 && !offer.SpecificProducts.ContainsAny(order.ProductIDs) {
		return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon does not apply to these products")
	}
	if len(offer.SpecificCategories) > 0 && !offer.SpecificCategories.ContainsAny(order.CategoryIDs) {
		return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon does not apply to these categories")
	}
	if len(offer.ApplicableSellers) > 0 && !offer.ApplicableSellers.ContainsAny(order.SellerIDs) {
		return reject(pkgerrors.ReasonCouponNotApplicable, "this coupon does not apply to these sellers")
	}
	return nil
}

// Commit records one use of the offer by userID. It must run inside the order
// transaction: the global counter is re-checked in the UPDATE itself and the
// per-user ledger entry is upserted.
func (v *validator) Commit(ctx context.Context, offer models.Offer, userID uuid.UUID) error {
	if err := v.repo.IncrementUsage(ctx, offer.ID); err != nil {
		if errors.Is(err, ErrUsageExhausted) {
			return reject(pkgerrors.ReasonUsageLimitReached, "this coupon has reached its usage limit")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}

	if offer.PerUserLimit != models.UnlimitedUsage {
		usage, err := v.repo.FindUsage(ctx, offer.ID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon usage")
		}
		if usageCount(usage) >= offer.PerUserLimit {
			return reject(pkgerrors.ReasonPerUserLimitReached, "you have already used this coupon the maximum number of times")
		}
	}

	if err := v.repo.UpsertUsage(ctx, offer.ID, userID, v.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
	}
	return nil
}

// Discount computes the adjustment an offer grants on subtotal.
// buy_x_get_y carries no computable benefit at order level and grants nothing.
func Discount(offer models.Offer, subtotal decimal.Decimal) pricing.Adjustment {
	switch offer.Type {
	case enums.OfferTypePercentage:
		discount := subtotal.Mul(offer.Value).Div(decimal.NewFromInt(100)).Round(2)
		if offer.MaxDiscountValue != nil && discount.GreaterThan(*offer.MaxDiscountValue) {
			discount = *offer.MaxDiscountValue
		}
		return pricing.Adjustment{Discount: discount}
	case enums.OfferTypeFixed:
		return pricing.Adjustment{Discount: offer.Value}
	case enums.OfferTypeFreeShipping:
		return pricing.Adjustment{Discount: decimal.Zero, FreeShipping: true}
	}
	return pricing.Adjustment{Discount: decimal.Zero}
}

func usageCount(usage *models.OfferUsage) int {
	if usage == nil {
		return 0
	}
	return usage.Count
}

func reject(reason pkgerrors.Reason, message string) error {
	code := pkgerrors.CodeConflict
	if reason == pkgerrors.ReasonInvalidOrExpiredCoupon || reason == pkgerrors.ReasonMinOrderValueNotMet {
		code = pkgerrors.CodeStateConflict
	}
	return pkgerrors.Rejection(code, reason, message)
}
