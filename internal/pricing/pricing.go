// Package pricing holds the monetary arithmetic for sale and purchase lines.
// All amounts are decimal and every derived amount is rounded half-up to two
// decimal places before it is aggregated or persisted.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidRate     = errors.New("gst percentage must be between 0 and 100")
	ErrInvalidAmount   = errors.New("amount must not be negative")
)

var hundred = decimal.NewFromInt(100)

// SaleLine is the priced result of one sale item. GSTAmount is computed from
// the discounted unit price; Subtotal is the undiscounted quantity extension.
type SaleLine struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	GSTAmount decimal.Decimal
	Total     decimal.Decimal
}

// PurchaseLine is the priced result of one purchase item. GST on purchases is
// caller-supplied, never derived from a rate.
type PurchaseLine struct {
	Subtotal  decimal.Decimal
	GSTAmount decimal.Decimal
	Total     decimal.Decimal
}

// round applies the commercial rounding used throughout: half-up to two
// decimal places. Amounts here are never negative, so decimal's
// half-away-from-zero rounding is exactly half-up.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeSaleLine prices a sale item. The per-unit discount is subtracted
// before the GST rate applies:
//
//	gst   = (unit - discount) * qty * rate / 100
//	total = (unit - discount) * qty + gst
func ComputeSaleLine(unitPrice decimal.Decimal, quantity int, discount decimal.Decimal, gstRate decimal.Decimal) (SaleLine, error) {
	if quantity <= 0 {
		return SaleLine{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if unitPrice.IsNegative() {
		return SaleLine{}, fmt.Errorf("%w: unit price %s", ErrInvalidAmount, unitPrice)
	}
	if discount.IsNegative() {
		return SaleLine{}, fmt.Errorf("%w: discount %s", ErrInvalidAmount, discount)
	}
	if gstRate.IsNegative() || gstRate.GreaterThan(hundred) {
		return SaleLine{}, fmt.Errorf("%w: got %s", ErrInvalidRate, gstRate)
	}

	effective := unitPrice.Sub(discount)
	if effective.IsNegative() {
		return SaleLine{}, fmt.Errorf("%w: discount %s exceeds unit price %s", ErrInvalidAmount, discount, unitPrice)
	}

	qty := decimal.NewFromInt(int64(quantity))
	base := round(effective.Mul(qty))
	gst := round(base.Mul(gstRate).Div(hundred))

	return SaleLine{
		Subtotal:  round(unitPrice.Mul(qty)),
		Discount:  round(discount.Mul(qty)),
		GSTAmount: gst,
		Total:     round(base.Add(gst)),
	}, nil
}

// ComputePurchaseLine prices a purchase item:
//
//	total = unit * qty + gstAmount
func ComputePurchaseLine(unitPrice decimal.Decimal, quantity int, gstAmount decimal.Decimal) (PurchaseLine, error) {
	if quantity <= 0 {
		return PurchaseLine{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if unitPrice.IsNegative() {
		return PurchaseLine{}, fmt.Errorf("%w: unit price %s", ErrInvalidAmount, unitPrice)
	}
	if gstAmount.IsNegative() {
		return PurchaseLine{}, fmt.Errorf("%w: gst amount %s", ErrInvalidAmount, gstAmount)
	}

	subtotal := round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	return PurchaseLine{
		Subtotal:  subtotal,
		GSTAmount: round(gstAmount),
		Total:     round(subtotal.Add(gstAmount)),
	}, nil
}

// GSTFromRate derives a purchase line's GST amount when the caller supplies a
// rate instead of an amount.
func GSTFromRate(unitPrice decimal.Decimal, quantity int, gstRate decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if gstRate.IsNegative() || gstRate.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidRate, gstRate)
	}
	base := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return round(base.Mul(gstRate).Div(hundred)), nil
}
