package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// EntryDTO is the API shape of a ledger row.
type EntryDTO struct {
	ID           int64               `json:"id"`
	RequestID    uuid.UUID           `json:"request_id"`
	Status       enums.RequestStatus `json:"status"`
	Note         *string             `json:"note,omitempty"`
	ChangedBy    *uuid.UUID          `json:"changed_by,omitempty"`
	IsAnnotation bool                `json:"is_annotation"`
	CreatedAt    time.Time           `json:"created_at"`
}

func NewEntryDTO(entry models.StatusHistoryEntry) EntryDTO {
	return EntryDTO{
		ID:           entry.ID,
		RequestID:    entry.RequestID,
		Status:       entry.Status,
		Note:         entry.Note,
		ChangedBy:    entry.ChangedBy,
		IsAnnotation: entry.IsAnnotation,
		CreatedAt:    entry.CreatedAt,
	}
}

// NewEntryDTOs keeps ledger order.
func NewEntryDTOs(entries []models.StatusHistoryEntry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewEntryDTO(entry))
	}
	return out
}
