// Package pricing computes order totals and the seller/platform split. It has
// no side effects; stock and coupon usage are committed by the caller.
package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// DefaultCommissionPct applies to sellers without their own commission rate.
var DefaultCommissionPct = decimal.NewFromInt(5)

// Line is one requested product priced against its catalog snapshot.
type Line struct {
	Product   models.Product
	Seller    models.Seller
	VariantID *string
	Quantity  int
}

// PricedLine is the computed money breakdown for a line.
type PricedLine struct {
	ProductID    uuid.UUID
	SellerID     uuid.UUID
	CategoryID   *uuid.UUID
	VariantID    *string
	Name         string
	SKU          string
	Image        string
	Price        decimal.Decimal
	Quantity     int
	ItemTotal    decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	PlatformFee  decimal.Decimal
	SellerAmount decimal.Decimal
}

// Quote aggregates priced lines. Total is only final after Apply.
type Quote struct {
	Lines        []PricedLine
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// Adjustment is the coupon outcome applied to a quote.
type Adjustment struct {
	Discount     decimal.Decimal
	FreeShipping bool
}

// Engine prices lines using a platform default commission.
type Engine struct {
	defaultCommission decimal.Decimal
	shippingCost      decimal.Decimal
}

// NewEngine builds an engine. A zero or negative commission falls back to
// DefaultCommissionPct.
func NewEngine(defaultCommission decimal.Decimal) Engine {
	if !defaultCommission.IsPositive() {
		defaultCommission = DefaultCommissionPct
	}
	return Engine{defaultCommission: defaultCommission, shippingCost: decimal.Zero}
}

// Price computes every line. Any failing line rejects the whole quote.
func (e Engine) Price(lines []Line) (*Quote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	quote := &Quote{
		Lines:        make([]PricedLine, 0, len(lines)),
		Subtotal:     decimal.Zero,
		Tax:          decimal.Zero,
		ShippingCost: e.shippingCost,
		Discount:     decimal.Zero,
	}
	for _, line := range lines {
		priced, err := e.priceLine(line)
		if err != nil {
			return nil, err
		}
		quote.Lines = append(quote.Lines, priced)
		quote.Subtotal = quote.Subtotal.Add(priced.ItemTotal)
		quote.Tax = quote.Tax.Add(priced.Tax)
	}
	quote.Total = quote.Subtotal.Add(quote.Tax).Add(quote.ShippingCost)
	return quote, nil
}

func (e Engine) priceLine(line Line) (PricedLine, error) {
	product := line.Product
	if line.Quantity < 1 {
		return PricedLine{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"product_id": product.ID.String()})
	}

	priced := PricedLine{
		ProductID:  product.ID,
		SellerID:   product.SellerID,
		CategoryID: product.CategoryID,
		Name:       product.Name,
		SKU:        product.SKU,
		Image:      product.PrimaryImage(),
		Price:      product.Price,
		Quantity:   line.Quantity,
	}
	if line.VariantID != nil && *line.VariantID != "" {
		variant, ok := product.Variants.Find(*line.VariantID)
		if !ok || !variant.IsActive {
			return PricedLine{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
				WithDetails(map[string]any{"product_id": product.ID.String(), "variant_id": *line.VariantID})
		}
		id := variant.ID
		priced.VariantID = &id
		if variant.Price.IsPositive() {
			priced.Price = variant.Price
		}
		if variant.SKU != "" {
			priced.SKU = variant.SKU
		}
		if variant.Image != "" {
			priced.Image = variant.Image
		}
	}

	if line.Quantity > product.StockQuantity {
		return PricedLine{}, lineRejection(pkgerrors.ReasonOutOfStock, "insufficient stock", product.ID)
	}
	if product.Status != enums.ProductStatusActive {
		return PricedLine{}, lineRejection(pkgerrors.ReasonProductUnavailable, "product is not available", product.ID)
	}
	if !line.Seller.CanSell() {
		return PricedLine{}, lineRejection(pkgerrors.ReasonSellerUnavailable, "seller is not accepting orders", product.ID)
	}

	commission := e.defaultCommission
	if line.Seller.CommissionRate != nil && !line.Seller.CommissionRate.IsNegative() {
		commission = *line.Seller.CommissionRate
	}

	qty := decimal.NewFromInt(int64(line.Quantity))
	priced.ItemTotal = priced.Price.Mul(qty).Round(moneyPlaces)
	priced.Tax = percentOf(priced.ItemTotal, product.TaxRate)
	priced.Total = priced.ItemTotal.Add(priced.Tax)
	priced.PlatformFee = percentOf(priced.ItemTotal, commission)
	priced.SellerAmount = priced.ItemTotal.Sub(priced.PlatformFee)
	return priced, nil
}

// Apply folds a coupon outcome into the quote. A discount larger than the
// subtotal is clamped so the total never goes below tax plus shipping.
func (q *Quote) Apply(adj Adjustment) {
	discount := adj.Discount.Round(moneyPlaces)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(q.Subtotal) {
		discount = q.Subtotal
	}
	q.Discount = discount
	if adj.FreeShipping {
		q.ShippingCost = decimal.Zero
	}
	q.Total = q.Subtotal.Add(q.Tax).Add(q.ShippingCost).Sub(q.Discount)
}

// SellerIDs returns the distinct sellers in line order.
func (q *Quote) SellerIDs() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := []uuid.UUID{}
	for _, line := range q.Lines {
		if _, ok := seen[line.SellerID]; ok {
			continue
		}
		seen[line.SellerID] = struct{}{}
		out = append(out, line.SellerID)
	}
	return out
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(moneyPlaces)
}

func lineRejection(reason pkgerrors.Reason, message string, productID uuid.UUID) error {
	return pkgerrors.Rejection(pkgerrors.CodeConflict, reason, message).
		WithDetails(map[string]any{"reason": string(reason), "product_id": productID.String()})
}
