package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// ActorRef identifies who produced the event. A nil actor means the system did.
type ActorRef struct {
	UserID uuid.UUID      `json:"userId"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// NewActorRef returns nil for an anonymous actor so envelopes omit the field.
func NewActorRef(userID *uuid.UUID, role enums.UserRole) *ActorRef {
	if userID == nil || *userID == uuid.Nil {
		return nil
	}
	return &ActorRef{UserID: *userID, Role: role}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
