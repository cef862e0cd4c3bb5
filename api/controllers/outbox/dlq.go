package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/api/responses"
	"github.com/angelmondragon/repairdesk-backend/api/validators"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	pkgoutbox "github.com/angelmondragon/repairdesk-backend/pkg/outbox"
)

// DLQReader is the read side of the dead-letter table.
type DLQReader interface {
	List(ctx context.Context, filter pkgoutbox.DLQFilter) ([]models.OutboxDLQ, error)
}

type DeadLetterDTO struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload"`
}

func newDeadLetterDTOs(rows []models.OutboxDLQ) []DeadLetterDTO {
	out := make([]DeadLetterDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, DeadLetterDTO{
			ID:            row.ID,
			EventID:       row.EventID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			ErrorReason:   row.ErrorReason,
			ErrorMessage:  row.ErrorMessage,
			AttemptCount:  row.AttemptCount,
			FailedAt:      row.FailedAt,
			Payload:       row.Payload,
		})
	}
	return out
}

// DeadLetters lists outbox rows the relay stopped retrying.
// Query: event_type, reason, aggregate_id, limit.
func DeadLetters(reader DLQReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead-letter store unavailable"))
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := reader.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, newDeadLetterDTOs(rows))
	}
}

func parseFilter(r *http.Request) (pkgoutbox.DLQFilter, error) {
	var filter pkgoutbox.DLQFilter

	eventType, err := validators.ParseQueryEnum(r, "event_type", enums.ParseOutboxEventType)
	if err != nil {
		return filter, err
	}
	if eventType != nil {
		filter.EventType = *eventType
	}
	reason, err := validators.ParseQueryEnum(r, "reason", enums.ParseOutboxDLQErrorReason)
	if err != nil {
		return filter, err
	}
	if reason != nil {
		filter.Reason = *reason
	}
	if filter.AggregateID, err = validators.ParseOptionalUUIDQuery(r, "aggregate_id"); err != nil {
		return filter, err
	}
	if filter.Limit, err = validators.ParseQueryInt(r, "limit", 50, 1, 200); err != nil {
		return filter, err
	}
	return filter, nil
}
