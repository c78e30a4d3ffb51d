package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingSnapshot freezes a product's prices at the moment a line is added.
// Later edits to the product never reach an existing snapshot.
type PricingSnapshot struct {
	ProductID  int64
	UnitPrice  decimal.Decimal
	CostPrice  decimal.Decimal
	CapturedAt time.Time
}

// CapturePricing copies the current sell and cost price of p.
func CapturePricing(p *Product, at time.Time) PricingSnapshot {
	return PricingSnapshot{
		ProductID:  p.ID,
		UnitPrice:  p.SellPrice,
		CostPrice:  p.CostPrice,
		CapturedAt: at,
	}
}

// Line builds the order detail carrying this snapshot.
func (s PricingSnapshot) Line(orderID int64, quantity int) OrderDetail {
	return OrderDetail{
		OrderID:   orderID,
		ProductID: s.ProductID,
		Quantity:  quantity,
		UnitPrice: s.UnitPrice,
		CostPrice: s.CostPrice,
	}
}

// Recalculate derives subtotal from details and re-clamps the discount so that
// discount <= subtotal and total = subtotal - discount.
func (o *Order) Recalculate(details []OrderDetail) {
	subtotal := decimal.Zero
	for _, d := range details {
		subtotal = subtotal.Add(d.Subtotal())
	}
	o.Subtotal = subtotal
	o.Discount = decimal.Min(o.Discount, subtotal)
	o.TotalAmount = o.Subtotal.Sub(o.Discount)
}

// WholeCents reports whether d has no digits below the cent. Money columns
// are NUMERIC(18,2), so finer amounts would be rounded on write.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// Balance is what remains to be paid given paid so far.
func (o *Order) Balance(paid decimal.Decimal) decimal.Decimal {
	return o.TotalAmount.Sub(paid)
}
