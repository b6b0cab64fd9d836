package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/types"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func activeSeller(commission *decimal.Decimal) models.Seller {
	return models.Seller{
		ID:             uuid.New(),
		Status:         enums.SellerStatusActive,
		IsVerified:     true,
		CommissionRate: commission,
	}
}

func product(seller models.Seller, price, tax string, stock int) models.Product {
	return models.Product{
		ID:            uuid.New(),
		SellerID:      seller.ID,
		Name:          "Kettle",
		SKU:           "KET-1",
		Images:        []string{"a.jpg", "b.jpg"},
		Price:         d(price),
		TaxRate:       d(tax),
		StockQuantity: stock,
		Status:        enums.ProductStatusActive,
	}
}

func TestPriceSingleLine(t *testing.T) {
	commission := d("5")
	seller := activeSeller(&commission)
	p := product(seller, "100", "5", 10)

	quote, err := NewEngine(DefaultCommissionPct).Price([]Line{{Product: p, Seller: seller, Quantity: 2}})
	require.NoError(t, err)
	quote.Apply(Adjustment{})

	assert.True(t, quote.Subtotal.Equal(d("200")), "subtotal %s", quote.Subtotal)
	assert.True(t, quote.Tax.Equal(d("10")), "tax %s", quote.Tax)
	assert.True(t, quote.Total.Equal(d("210")), "total %s", quote.Total)

	line := quote.Lines[0]
	assert.True(t, line.PlatformFee.Equal(d("10")))
	assert.True(t, line.SellerAmount.Equal(d("190")))
	assert.True(t, line.Total.Equal(line.ItemTotal.Add(line.Tax)))
	assert.True(t, line.SellerAmount.Add(line.PlatformFee).Equal(line.Price.Mul(decimal.NewFromInt(2))))
	assert.Equal(t, "a.jpg", line.Image)
}

func TestPriceUsesDefaultCommission(t *testing.T) {
	seller := activeSeller(nil)
	p := product(seller, "33.33", "18", 5)

	quote, err := NewEngine(decimal.Zero).Price([]Line{{Product: p, Seller: seller, Quantity: 3}})
	require.NoError(t, err)

	line := quote.Lines[0]
	assert.True(t, line.ItemTotal.Equal(d("99.99")))
	assert.True(t, line.PlatformFee.Equal(d("5")), "fee %s", line.PlatformFee)
	assert.True(t, line.SellerAmount.Equal(d("94.99")))
	assert.True(t, line.Tax.Equal(d("18")), "tax %s", line.Tax)
}

func TestPriceVariantOverridesSnapshot(t *testing.T) {
	seller := activeSeller(nil)
	p := product(seller, "100", "0", 5)
	p.Variants = types.ProductVariants{
		{ID: "v-red", SKU: "KET-RED", Price: d("120"), Image: "red.jpg", IsActive: true},
		{ID: "v-old", SKU: "KET-OLD", Price: d("90"), IsActive: false},
	}
	variant := "v-red"

	quote, err := NewEngine(DefaultCommissionPct).Price([]Line{{Product: p, Seller: seller, VariantID: &variant, Quantity: 1}})
	require.NoError(t, err)
	line := quote.Lines[0]
	assert.True(t, line.Price.Equal(d("120")))
	assert.Equal(t, "KET-RED", line.SKU)
	assert.Equal(t, "red.jpg", line.Image)

	inactive := "v-old"
	_, err = NewEngine(DefaultCommissionPct).Price([]Line{{Product: p, Seller: seller, VariantID: &inactive, Quantity: 1}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPriceRejections(t *testing.T) {
	seller := activeSeller(nil)
	ok := product(seller, "10", "0", 5)

	inactive := product(seller, "10", "0", 5)
	inactive.Status = enums.ProductStatusInactive

	unverified := activeSeller(nil)
	unverified.IsVerified = false

	cases := []struct {
		name   string
		lines  []Line
		reason pkgerrors.Reason
	}{
		{"stock", []Line{{Product: ok, Seller: seller, Quantity: 6}}, pkgerrors.ReasonOutOfStock},
		{"product", []Line{{Product: inactive, Seller: seller, Quantity: 1}}, pkgerrors.ReasonProductUnavailable},
		{"seller", []Line{{Product: ok, Seller: unverified, Quantity: 1}}, pkgerrors.ReasonSellerUnavailable},
		{"second line fails", []Line{{Product: ok, Seller: seller, Quantity: 1}, {Product: ok, Seller: seller, Quantity: 9}}, pkgerrors.ReasonOutOfStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(DefaultCommissionPct).Price(tc.lines)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasReason(err, tc.reason), "got %v", err)
		})
	}

	_, err := NewEngine(DefaultCommissionPct).Price(nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = NewEngine(DefaultCommissionPct).Price([]Line{{Product: ok, Seller: seller, Quantity: 0}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplyDiscountAndShipping(t *testing.T) {
	quote := &Quote{
		Subtotal:     d("200"),
		Tax:          d("10"),
		ShippingCost: d("40"),
	}
	quote.Apply(Adjustment{Discount: d("15")})
	assert.True(t, quote.Total.Equal(d("235")))

	quote.Apply(Adjustment{FreeShipping: true})
	assert.True(t, quote.ShippingCost.IsZero())
	assert.True(t, quote.Total.Equal(d("210")))

	quote.Apply(Adjustment{FreeShipping: true})
	assert.True(t, quote.Total.Equal(d("210")), "free shipping is not additive")

	quote.Apply(Adjustment{Discount: d("500")})
	assert.True(t, quote.Discount.Equal(d("200")))
	assert.True(t, quote.Total.Equal(d("10")))
	assert.True(t, quote.Total.Equal(quote.Subtotal.Add(quote.Tax).Add(quote.ShippingCost).Sub(quote.Discount)))
}

func TestSellerIDsDistinctInOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	quote := &Quote{Lines: []PricedLine{{SellerID: a}, {SellerID: b}, {SellerID: a}}}
	assert.Equal(t, []uuid.UUID{a, b}, quote.SellerIDs())
}
