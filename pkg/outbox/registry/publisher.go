package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
// Lifecycle events go to the requests topic; anything meant for a customer
// goes to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RequestsTopic == "" {
		return nil, fmt.Errorf("requests topic is required")
	}
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		decoders: NewDecoderRegistry(),
	}
	requestsTopic := cfg.RequestsTopic
	notificationTopic := cfg.NotificationTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventRequestCreated,
			AggregateType:  enums.AggregateRepairRequest,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.RequestCreatedEvent{} },
		},
		{
			EventType:      enums.EventRequestStatusChanged,
			AggregateType:  enums.AggregateRepairRequest,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.RequestStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventQuoteGenerated,
			AggregateType:  enums.AggregateInvoice,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.QuoteGeneratedEvent{} },
		},
		{
			EventType:      enums.EventQuoteDecided,
			AggregateType:  enums.AggregateInvoice,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.QuoteDecidedEvent{} },
		},
		{
			EventType:      enums.EventInvoiceFinalized,
			AggregateType:  enums.AggregateInvoice,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.InvoiceFinalizedEvent{} },
		},
		{
			EventType:      enums.EventInvoicePaymentRecorded,
			AggregateType:  enums.AggregateInvoice,
			Topic:          requestsTopic,
			PayloadFactory: func() interface{} { return &payloads.InvoicePaymentRecordedEvent{} },
		},
	} {
		if err := reg.register(desc); err != nil {
			return nil, err
		}
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventNotificationRequested,
			AggregateType:  enums.AggregateRepairRequest,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.NotificationRequestedEvent{} },
		},
		{
			EventType:      enums.EventQuoteReminder,
			AggregateType:  enums.AggregateInvoice,
			Topic:          notificationTopic,
			PayloadFactory: func() interface{} { return &payloads.QuoteReminderEvent{} },
		},
	} {
		if err := reg.register(desc); err != nil {
			return nil, err
		}
	}

	// Every event the core writes must be relayable, or its rows would all
	// land in the DLQ.
	if missing := reg.decoders.Missing(enums.OutboxEventTypes()); len(missing) > 0 {
		return nil, fmt.Errorf("outbox events without a decoder: %v", missing)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) error {
	if desc.PayloadFactory == nil {
		return fmt.Errorf("%s: payload factory is required", desc.EventType)
	}
	r.entries[desc.EventType] = desc
	factory := desc.PayloadFactory
	return r.decoders.Register(desc.EventType, 1, func(data json.RawMessage) (interface{}, error) {
		payload := factory()
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
}

// Topics lists the distinct topics referenced by registered events.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		out = append(out, desc.Topic)
	}
	return out
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(event.EventType, version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
