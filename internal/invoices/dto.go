package invoices

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// InvoiceDTO is the API shape of an invoice and its quote state.
// Money fields are fixed two-decimal strings.
type InvoiceDTO struct {
	ID             uuid.UUID           `json:"id"`
	RequestID      uuid.UUID           `json:"request_id"`
	Status         enums.InvoiceStatus `json:"status"`
	QuoteStatus    *enums.QuoteStatus  `json:"quote_status,omitempty"`
	QuoteNote      *string             `json:"quote_note,omitempty"`
	QuoteDecidedBy *uuid.UUID          `json:"quote_decided_by,omitempty"`
	QuoteDecidedAt *time.Time          `json:"quote_decided_at,omitempty"`
	QuotedAt       *time.Time          `json:"quoted_at,omitempty"`
	Subtotal       string              `json:"subtotal"`
	TaxRate        string              `json:"tax_rate"`
	TaxAmount      string              `json:"tax_amount"`
	Total          string              `json:"total"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	PaymentDate    *time.Time          `json:"payment_date,omitempty"`
	FinalizedAt    *time.Time          `json:"finalized_at,omitempty"`
	Items          []LineItemDTO       `json:"items"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// LineItemDTO is one invoice line.
type LineItemDTO struct {
	ID        uuid.UUID `json:"id"`
	Item      string    `json:"item"`
	Unit      string    `json:"unit"`
	Qty       string    `json:"qty"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
}

// NewInvoiceDTO maps the persisted invoice onto its API shape.
func NewInvoiceDTO(invoice *models.Invoice) *InvoiceDTO {
	if invoice == nil {
		return nil
	}
	items := make([]LineItemDTO, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		items = append(items, LineItemDTO{
			ID:        item.ID,
			Item:      item.Item,
			Unit:      item.Unit,
			Qty:       item.Qty.StringFixed(2),
			UnitPrice: item.UnitPrice.StringFixed(2),
			Subtotal:  item.Subtotal.StringFixed(2),
		})
	}
	return &InvoiceDTO{
		ID:             invoice.ID,
		RequestID:      invoice.RequestID,
		Status:         invoice.Status,
		QuoteStatus:    invoice.QuoteStatus,
		QuoteNote:      invoice.QuoteNote,
		QuoteDecidedBy: invoice.QuoteDecidedBy,
		QuoteDecidedAt: invoice.QuoteDecidedAt,
		QuotedAt:       invoice.QuotedAt,
		Subtotal:       invoice.Subtotal.StringFixed(2),
		TaxRate:        invoice.TaxRate.StringFixed(4),
		TaxAmount:      invoice.TaxAmount.StringFixed(2),
		Total:          invoice.Total.StringFixed(2),
		PaymentStatus:  invoice.PaymentStatus,
		PaymentDate:    invoice.PaymentDate,
		FinalizedAt:    invoice.FinalizedAt,
		Items:          items,
		CreatedAt:      invoice.CreatedAt,
		UpdatedAt:      invoice.UpdatedAt,
	}
}
