package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateRepairRequest OutboxAggregateType = "repair_request"
	AggregateInvoice       OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRepairRequest,
	AggregateInvoice,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event stored in outbox_events.
type OutboxEventType string

const (
	EventRequestCreated         OutboxEventType = "request_created"
	EventRequestStatusChanged   OutboxEventType = "request_status_changed"
	EventQuoteGenerated         OutboxEventType = "quote_generated"
	EventQuoteDecided           OutboxEventType = "quote_decided"
	EventQuoteReminder          OutboxEventType = "quote_reminder"
	EventInvoiceFinalized       OutboxEventType = "invoice_finalized"
	EventInvoicePaymentRecorded OutboxEventType = "invoice_payment_recorded"
	EventNotificationRequested  OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRequestCreated,
	EventRequestStatusChanged,
	EventQuoteGenerated,
	EventQuoteDecided,
	EventQuoteReminder,
	EventInvoiceFinalized,
	EventInvoicePaymentRecorded,
	EventNotificationRequested,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxEventTypes lists every event type the core can write.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), validOutboxEventTypes...)
}
