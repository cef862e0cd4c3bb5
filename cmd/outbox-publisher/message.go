package main

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/registry"
)

// outboundMessage is what the relay hands to a topic publisher. Attributes
// let subscribers filter without decoding Data.
type outboundMessage struct {
	Data       []byte
	Attributes map[string]string
}

// route is where a resolved row goes and how long it stays worth sending.
type route struct {
	topic          string
	customerFacing bool
	occurredAt     time.Time
}

func (r route) fields() map[string]any {
	return map[string]any{
		"topic":           r.topic,
		"customer_facing": r.customerFacing,
		"occurred_at":     r.occurredAt.Format(time.RFC3339Nano),
	}
}

func routeFor(row models.OutboxEvent, resolved *registry.ResolvedEvent) route {
	occurredAt := resolved.Envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = row.CreatedAt
	}
	var customerFacing bool
	switch resolved.Payload.(type) {
	case *payloads.NotificationRequestedEvent, *payloads.QuoteReminderEvent:
		customerFacing = true
	}
	return route{
		topic:          resolved.Descriptor.Topic,
		customerFacing: customerFacing,
		occurredAt:     occurredAt,
	}
}

// buildMessage keeps the stored envelope as the body and lifts the fields
// subscribers route on into attributes.
func buildMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *outboundMessage {
	attrs := attributes{
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	version := resolved.Envelope.Version
	if version <= 0 {
		version = 1
	}
	attrs["schema_version"] = strconv.Itoa(version)
	attrs.set("event_id", resolved.Envelope.EventID)

	switch p := resolved.Payload.(type) {
	case *payloads.RequestCreatedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.set("ticket_code", p.TicketCode)
		attrs.set("status", string(p.Status))
		attrs.set("service_type", string(p.ServiceType))
		attrs.set("priority", string(p.Priority))
	case *payloads.RequestStatusChangedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.set("ticket_code", p.TicketCode)
		attrs.set("action", p.Action)
		attrs.set("from_status", string(p.FromStatus))
		attrs.set("status", string(p.ToStatus))
	case *payloads.QuoteGeneratedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("invoice_id", p.InvoiceID)
	case *payloads.QuoteDecidedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("invoice_id", p.InvoiceID)
		attrs.set("quote_status", string(p.QuoteStatus))
	case *payloads.QuoteReminderEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("invoice_id", p.InvoiceID)
		attrs.setID("recipient_id", p.CustomerID)
		attrs.set("ticket_code", p.TicketCode)
	case *payloads.InvoiceFinalizedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("invoice_id", p.InvoiceID)
	case *payloads.InvoicePaymentRecordedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("invoice_id", p.InvoiceID)
		attrs.set("payment_status", string(p.PaymentStatus))
	case *payloads.NotificationRequestedEvent:
		attrs.setID("request_id", p.RequestID)
		attrs.setID("recipient_id", p.RecipientID)
		attrs.set("notification_type", string(p.Type))
		attrs.set("ticket_code", p.TicketCode)
		attrs.set("status", string(p.Status))
		if p.InvoiceID != nil {
			attrs.setID("invoice_id", *p.InvoiceID)
		}
	}

	return &outboundMessage{Data: row.Payload, Attributes: attrs}
}

type attributes map[string]string

func (a attributes) set(key, value string) {
	if value != "" {
		a[key] = value
	}
}

func (a attributes) setID(key string, id uuid.UUID) {
	if id != uuid.Nil {
		a[key] = id.String()
	}
}
