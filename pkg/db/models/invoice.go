package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Invoice accumulates line items for a request and carries its quote approval state.
// Subtotal, TaxAmount and Total are recomputed after every line item mutation.
type Invoice struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	RequestID       uuid.UUID           `gorm:"column:request_id;type:uuid;not null;uniqueIndex:ux_invoices_request"`
	CreatedBy       *uuid.UUID          `gorm:"column:created_by;type:uuid"`
	Status          enums.InvoiceStatus `gorm:"column:status;type:text;not null"`
	QuoteStatus     *enums.QuoteStatus  `gorm:"column:quote_status;type:text"`
	QuoteNote       *string             `gorm:"column:quote_note;type:text"`
	QuoteDecidedBy  *uuid.UUID          `gorm:"column:quote_decided_by;type:uuid"`
	QuoteDecidedAt  *time.Time          `gorm:"column:quote_decided_at"`
	QuotedAt        *time.Time          `gorm:"column:quoted_at"`
	QuoteRemindedAt *time.Time          `gorm:"column:quote_reminded_at"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxRate         decimal.Decimal     `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	TaxAmount       decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaymentDate     *time.Time          `gorm:"column:payment_date"`
	FinalizedAt     *time.Time          `gorm:"column:finalized_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;references:ID"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// QuoteStatusIs reports whether the quote is currently in the given state.
func (i *Invoice) QuoteStatusIs(status enums.QuoteStatus) bool {
	return i != nil && i.QuoteStatus != nil && *i.QuoteStatus == status
}

// InvoiceItem is an immutable invoice line.
type InvoiceItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceID uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	Item      string          `gorm:"column:item;not null"`
	Unit      string          `gorm:"column:unit;not null"`
	Qty       decimal.Decimal `gorm:"column:qty;type:numeric(10,2);not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `gorm:"column:subtotal;type:numeric(14,4);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

func (i *InvoiceItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
