package payloads

import (
	"time"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestCreatedEvent signals a new repair ticket entered the workflow.
type RequestCreatedEvent struct {
	RequestID   uuid.UUID           `json:"request_id"`
	TicketCode  string              `json:"ticket_code"`
	CustomerID  uuid.UUID           `json:"customer_id"`
	ServiceType enums.ServiceType   `json:"service_type"`
	Priority    enums.Priority      `json:"priority"`
	Status      enums.RequestStatus `json:"status"`
	CreatedBy   *uuid.UUID          `json:"created_by,omitempty"`
}

// RequestStatusChangedEvent is emitted for every committed workflow transition.
type RequestStatusChangedEvent struct {
	RequestID  uuid.UUID           `json:"request_id"`
	TicketCode string              `json:"ticket_code"`
	CustomerID uuid.UUID           `json:"customer_id"`
	Action     string              `json:"action"`
	FromStatus enums.RequestStatus `json:"from_status"`
	ToStatus   enums.RequestStatus `json:"to_status"`
	ChangedBy  *uuid.UUID          `json:"changed_by,omitempty"`
	Note       string              `json:"note,omitempty"`
}

// QuoteGeneratedEvent carries the quoted amounts sent to the customer.
type QuoteGeneratedEvent struct {
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	RequestID  uuid.UUID       `json:"request_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
	QuotedAt   time.Time       `json:"quoted_at"`
}

// QuoteDecidedEvent records an approval or rejection of a pending quote.
type QuoteDecidedEvent struct {
	InvoiceID   uuid.UUID         `json:"invoice_id"`
	RequestID   uuid.UUID         `json:"request_id"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	QuoteStatus enums.QuoteStatus `json:"quote_status"`
	DecidedBy   uuid.UUID         `json:"decided_by"`
	ByCustomer  bool              `json:"by_customer"`
	Reason      string            `json:"reason,omitempty"`
}

// QuoteReminderEvent nudges a customer whose quote has been pending too long.
type QuoteReminderEvent struct {
	InvoiceID  uuid.UUID       `json:"invoice_id"`
	RequestID  uuid.UUID       `json:"request_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	TicketCode string          `json:"ticket_code"`
	Total      decimal.Decimal `json:"total"`
	QuotedAt   time.Time       `json:"quoted_at"`
}

// InvoiceFinalizedEvent is emitted once the Billing desk locks an invoice.
type InvoiceFinalizedEvent struct {
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	RequestID   uuid.UUID       `json:"request_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	Total       decimal.Decimal `json:"total"`
	FinalizedAt time.Time       `json:"finalized_at"`
}

// InvoicePaymentRecordedEvent reports the payment outcome captured at the Billing desk.
type InvoicePaymentRecordedEvent struct {
	InvoiceID     uuid.UUID           `json:"invoice_id"`
	RequestID     uuid.UUID           `json:"request_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentDate   *time.Time          `json:"payment_date,omitempty"`
	RecordedBy    uuid.UUID           `json:"recorded_by"`
}

// NotificationRequestedEvent asks the delivery service to tell a customer about their ticket.
type NotificationRequestedEvent struct {
	RecipientID uuid.UUID              `json:"recipient_id"`
	Type        enums.NotificationType `json:"type"`
	RequestID   uuid.UUID              `json:"request_id"`
	TicketCode  string                 `json:"ticket_code"`
	Status      enums.RequestStatus    `json:"status,omitempty"`
	InvoiceID   *uuid.UUID             `json:"invoice_id,omitempty"`
	Message     string                 `json:"message"`
}
