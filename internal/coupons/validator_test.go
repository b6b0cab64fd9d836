package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-orders/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	dbtypes "github.com/angelmondragon/marketplace-orders/pkg/db/types"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func seedOffer(t *testing.T, db *gorm.DB, mutate func(*models.Offer)) models.Offer {
	t.Helper()
	offer := models.Offer{
		ID:            uuid.New(),
		Code:          "CODE-" + uuid.NewString()[:6],
		Type:          enums.OfferTypePercentage,
		Value:         dec("10"),
		StartDate:     testNow.Add(-24 * time.Hour),
		EndDate:       testNow.Add(24 * time.Hour),
		IsActive:      true,
		ApplicableFor: enums.OfferAudienceAll,
		UsageLimit:    models.UnlimitedUsage,
		PerUserLimit:  models.UnlimitedUsage,
	}
	if mutate != nil {
		mutate(&offer)
	}
	require.NoError(t, db.Create(&offer).Error)
	return offer
}

func newTestValidator(t *testing.T, db *gorm.DB) Validator {
	t.Helper()
	v, err := NewValidator(NewRepository(db), func() time.Time { return testNow })
	require.NoError(t, err)
	return v
}

func TestPercentageCouponIsCapped(t *testing.T) {
	db := dbtest.Open(t)
	offer := seedOffer(t, db, func(o *models.Offer) {
		o.Code = "SAVE10"
		o.MaxDiscountValue = decPtr("15")
	})
	v := newTestValidator(t, db)

	outcome, err := v.Validate(context.Background(), "SAVE10", OrderContext{UserID: uuid.New(), Subtotal: dec("200")})
	require.NoError(t, err)
	assert.Equal(t, offer.ID, outcome.Offer.ID)
	assert.True(t, outcome.Adjustment.Discount.Equal(dec("15")), "discount %s", outcome.Adjustment.Discount)

	var reloaded models.Offer
	require.NoError(t, db.First(&reloaded, "id = ?", offer.ID).Error)
	assert.Equal(t, 0, reloaded.UsageCount, "validate must not consume usage")
}

func TestPerUserLimitReachedOnSecondOrder(t *testing.T) {
	db := dbtest.Open(t)
	offer := seedOffer(t, db, func(o *models.Offer) { o.PerUserLimit = 1 })
	v := newTestValidator(t, db)
	ctx := context.Background()
	userID := uuid.New()
	order := OrderContext{UserID: userID, Subtotal: dec("100")}

	outcome, err := v.Validate(ctx, offer.Code, order)
	require.NoError(t, err)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return v.WithTx(tx).Commit(ctx, outcome.Offer, userID)
	}))

	var usage models.OfferUsage
	require.NoError(t, db.First(&usage, "offer_id = ? AND user_id = ?", offer.ID, userID).Error)
	assert.Equal(t, 1, usage.Count)

	_, err = v.Validate(ctx, offer.Code, order)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonPerUserLimitReached), "got %v", err)

	var reloaded models.Offer
	require.NoError(t, db.First(&reloaded, "id = ?", offer.ID).Error)
	assert.Equal(t, 1, reloaded.UsageCount)

	other, err := v.Validate(ctx, offer.Code, OrderContext{UserID: uuid.New(), Subtotal: dec("100")})
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestCommitIncrementsExistingUsage(t *testing.T) {
	db := dbtest.Open(t)
	offer := seedOffer(t, db, nil)
	v := newTestValidator(t, db)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, v.Commit(ctx, offer, userID))
	require.NoError(t, v.Commit(ctx, offer, userID))

	var usage models.OfferUsage
	require.NoError(t, db.First(&usage, "offer_id = ? AND user_id = ?", offer.ID, userID).Error)
	assert.Equal(t, 2, usage.Count)

	var reloaded models.Offer
	require.NoError(t, db.First(&reloaded, "id = ?", offer.ID).Error)
	assert.Equal(t, 2, reloaded.UsageCount)
}

func TestCommitRespectsGlobalLimit(t *testing.T) {
	db := dbtest.Open(t)
	offer := seedOffer(t, db, func(o *models.Offer) { o.UsageLimit = 1 })
	v := newTestValidator(t, db)
	ctx := context.Background()

	require.NoError(t, v.Commit(ctx, offer, uuid.New()))
	err := v.Commit(ctx, offer, uuid.New())
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonUsageLimitReached), "got %v", err)
}

func TestValidateRejectionOrder(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	v := newTestValidator(t, db)
	userID := uuid.New()
	productID := uuid.New()

	expired := seedOffer(t, db, func(o *models.Offer) { o.EndDate = testNow.Add(-time.Hour) })
	inactive := seedOffer(t, db, func(o *models.Offer) { o.IsActive = false })
	minValue := seedOffer(t, db, func(o *models.Offer) {
		o.MinOrderValue = decPtr("500")
		o.UsageLimit = 0
	})
	specific := seedOffer(t, db, func(o *models.Offer) {
		o.ApplicableFor = enums.OfferAudienceSpecificUsers
		o.SpecificUsers = dbtypes.UUIDArray{uuid.New()}
	})
	wrongProduct := seedOffer(t, db, func(o *models.Offer) { o.SpecificProducts = dbtypes.UUIDArray{uuid.New()} })
	exhausted := seedOffer(t, db, func(o *models.Offer) {
		o.UsageLimit = 2
		o.UsageCount = 2
		o.PerUserLimit = 0
	})

	cases := []struct {
		code   string
		reason pkgerrors.Reason
	}{
		{"UNKNOWN", pkgerrors.ReasonInvalidOrExpiredCoupon},
		{expired.Code, pkgerrors.ReasonInvalidOrExpiredCoupon},
		{inactive.Code, pkgerrors.ReasonInvalidOrExpiredCoupon},
		{minValue.Code, pkgerrors.ReasonMinOrderValueNotMet},
		{specific.Code, pkgerrors.ReasonCouponNotApplicable},
		{wrongProduct.Code, pkgerrors.ReasonCouponNotApplicable},
		{exhausted.Code, pkgerrors.ReasonUsageLimitReached},
	}
	for _, tc := range cases {
		_, err := v.Validate(ctx, tc.code, OrderContext{UserID: userID, Subtotal: dec("200"), ProductIDs: []uuid.UUID{productID}})
		require.Error(t, err, tc.code)
		assert.True(t, pkgerrors.HasReason(err, tc.reason), "%s: got %v", tc.code, err)
	}
}

func TestNewUsersAudience(t *testing.T) {
	db := dbtest.Open(t)
	offer := seedOffer(t, db, func(o *models.Offer) { o.ApplicableFor = enums.OfferAudienceNewUsers })
	v := newTestValidator(t, db)
	ctx := context.Background()
	user := dbtest.SeedUser(t, db, enums.ActorRoleUser)

	_, err := v.Validate(ctx, offer.Code, OrderContext{UserID: user.ID, Subtotal: dec("50")})
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, order_number, user_id, shipping_address, billing_address, payment, subtotal, tax, shipping_cost, discount, total, status)
		 VALUES (?, 'ORD1', ?, '{}', '{}', '{}', '0', '0', '0', '0', '0', 'pending')`,
		uuid.New(), user.ID,
	).Error)

	_, err = v.Validate(ctx, offer.Code, OrderContext{UserID: user.ID, Subtotal: dec("50")})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCouponNotApplicable), "got %v", err)
}

func TestDiscountByType(t *testing.T) {
	subtotal := dec("80")
	fixed := Discount(models.Offer{Type: enums.OfferTypeFixed, Value: dec("25")}, subtotal)
	assert.True(t, fixed.Discount.Equal(dec("25")))

	uncapped := Discount(models.Offer{Type: enums.OfferTypePercentage, Value: dec("12.5")}, subtotal)
	assert.True(t, uncapped.Discount.Equal(dec("10")))

	shipping := Discount(models.Offer{Type: enums.OfferTypeFreeShipping, Value: dec("0")}, subtotal)
	assert.True(t, shipping.FreeShipping)
	assert.True(t, shipping.Discount.IsZero())

	bogo := Discount(models.Offer{Type: enums.OfferTypeBuyXGetY, Value: dec("1")}, subtotal)
	assert.True(t, bogo.Discount.IsZero())
	assert.False(t, bogo.FreeShipping)
}
