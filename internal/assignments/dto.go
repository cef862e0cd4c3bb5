package assignments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// AssignmentDTO is the API shape of a desk hand-off.
type AssignmentDTO struct {
	ID         int64      `json:"id"`
	RequestID  uuid.UUID  `json:"request_id"`
	Desk       enums.Desk `json:"desk"`
	AssignedTo uuid.UUID  `json:"assigned_to"`
	AssignedAt time.Time  `json:"assigned_at"`
}

func NewAssignmentDTO(row models.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:         row.ID,
		RequestID:  row.RequestID,
		Desk:       row.Desk,
		AssignedTo: row.AssignedTo,
		AssignedAt: row.AssignedAt,
	}
}

func NewAssignmentDTOs(rows []models.Assignment) []AssignmentDTO {
	out := make([]AssignmentDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewAssignmentDTO(row))
	}
	return out
}

// CurrentAssignmentDTO is one entry of a staff member's work queue.
type CurrentAssignmentDTO struct {
	RequestID  uuid.UUID           `json:"request_id"`
	TicketCode string              `json:"ticket_code"`
	Status     enums.RequestStatus `json:"status"`
	Priority   enums.Priority      `json:"priority"`
	Desk       enums.Desk          `json:"desk"`
	AssignedAt time.Time           `json:"assigned_at"`
}

// MyAssignmentsDTO is the API shape of MyAssignmentsPage.
type MyAssignmentsDTO struct {
	Items      []CurrentAssignmentDTO `json:"items"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

func NewMyAssignmentsDTO(page *MyAssignmentsPage) MyAssignmentsDTO {
	out := MyAssignmentsDTO{Items: []CurrentAssignmentDTO{}}
	if page == nil {
		return out
	}
	out.NextCursor = page.NextCursor
	for _, row := range page.Items {
		out.Items = append(out.Items, CurrentAssignmentDTO{
			RequestID:  row.RequestID,
			TicketCode: row.TicketCode,
			Status:     row.Status,
			Priority:   row.Priority,
			Desk:       row.Desk,
			AssignedAt: row.AssignedAt,
		})
	}
	return out
}
