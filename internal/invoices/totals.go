package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
)

const moneyPlaces = 2

// hasCents reports whether d fits the two-decimal qty and price columns.
// Trailing zeros are fine: 1.500 is accepted.
func hasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyPlaces))
}

// LineSubtotal is the exact charge for one line. Both factors carry at most
// two decimals, so the product fits the four-decimal item column unrounded.
func LineSubtotal(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice)
}

// Totals holds the recomputed summary fields of an invoice.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// ComputeTotals rounds once over the exact line sum:
// total = round(sum * (1 + rate), 2), subtotal = round(sum, 2) and
// tax_amount = total - subtotal, so total always equals subtotal + tax_amount.
func ComputeTotals(items []models.InvoiceItem, taxRate decimal.Decimal) Totals {
	exact := decimal.Zero
	for _, item := range items {
		exact = exact.Add(item.Subtotal)
	}
	subtotal := exact.Round(moneyPlaces)
	total := exact.Mul(decimal.NewFromInt(1).Add(taxRate)).Round(moneyPlaces)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: total.Sub(subtotal),
		Total:     total,
	}
}
