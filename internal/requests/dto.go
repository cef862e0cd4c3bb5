package requests

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// CreateInput carries the intake form for a new ticket.
type CreateInput struct {
	CustomerID       uuid.UUID
	ActorID          uuid.UUID
	ActorRole        enums.UserRole
	DeviceType       string
	Brand            string
	Model            string
	SerialNo         *string
	IssueDescription string
	ServiceType      enums.ServiceType
	ServiceAddress   *string
	PreferredContact *string
	Accessories      *string
	WarrantyStatus   *string
	AttachmentPath   *string
	Priority         enums.Priority
}

// DeviceDetailsInput corrects the device identity recorded at intake.
type DeviceDetailsInput struct {
	RequestID uuid.UUID
	Brand     string
	Model     string
	SerialNo  *string
	ActorID   uuid.UUID
}

// NoteInput is a freeform annotation from a technician.
type NoteInput struct {
	RequestID uuid.UUID
	Note      string
	ActorID   uuid.UUID
}

// ListFilters narrow the staff request list.
type ListFilters struct {
	Status      *enums.RequestStatus
	CustomerID  *uuid.UUID
	ServiceType *enums.ServiceType
	Priority    *enums.Priority
	Unassigned  bool
	OpenOnly    bool
}

// RequestDTO is the API shape of a repair request.
type RequestDTO struct {
	ID               uuid.UUID           `json:"id"`
	TicketCode       string              `json:"ticket_code"`
	CustomerID       uuid.UUID           `json:"customer_id"`
	CreatedBy        *uuid.UUID          `json:"created_by,omitempty"`
	DeviceType       string              `json:"device_type"`
	Brand            string              `json:"brand"`
	Model            string              `json:"model"`
	SerialNo         *string             `json:"serial_no,omitempty"`
	IssueDescription string              `json:"issue_description"`
	ServiceType      enums.ServiceType   `json:"service_type"`
	ServiceAddress   *string             `json:"service_address,omitempty"`
	PreferredContact *string             `json:"preferred_contact,omitempty"`
	Accessories      *string             `json:"accessories,omitempty"`
	WarrantyStatus   *string             `json:"warranty_status,omitempty"`
	AttachmentPath   *string             `json:"attachment_path,omitempty"`
	Priority         enums.Priority      `json:"priority"`
	Status           enums.RequestStatus `json:"status"`
	Version          int                 `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// NewRequestDTO maps the persisted row onto its API shape.
func NewRequestDTO(req models.RepairRequest) RequestDTO {
	return RequestDTO{
		ID:               req.ID,
		TicketCode:       req.TicketCode,
		CustomerID:       req.CustomerID,
		CreatedBy:        req.CreatedByUserID,
		DeviceType:       req.DeviceType,
		Brand:            req.Brand,
		Model:            req.Model,
		SerialNo:         req.SerialNo,
		IssueDescription: req.IssueDescription,
		ServiceType:      req.ServiceType,
		ServiceAddress:   req.ServiceAddress,
		PreferredContact: req.PreferredContact,
		Accessories:      req.Accessories,
		WarrantyStatus:   req.WarrantyStatus,
		AttachmentPath:   req.AttachmentPath,
		Priority:         req.Priority,
		Status:           req.Status,
		Version:          req.Version,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
}

// RequestPage is a cursor page of repair requests.
type RequestPage struct {
	Items      []RequestDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// Dashboard summarizes the request book for admins.
type Dashboard struct {
	ByStatus   map[enums.RequestStatus]int64 `json:"by_status"`
	Total      int64                         `json:"total"`
	Open       int64                         `json:"open"`
	Terminal   int64                         `json:"terminal"`
	Unassigned int64                         `json:"unassigned"`
}
