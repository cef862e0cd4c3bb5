package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// RepairRequest is a single device-repair ticket. Status only changes through workflow transitions.
type RepairRequest struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TicketCode       string              `gorm:"column:ticket_code;not null;uniqueIndex:ux_repair_requests_ticket_code"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	CreatedByUserID  *uuid.UUID          `gorm:"column:created_by_user_id;type:uuid"`
	DeviceType       string              `gorm:"column:device_type;not null"`
	Brand            string              `gorm:"column:brand;not null"`
	Model            string              `gorm:"column:model;not null"`
	SerialNo         *string             `gorm:"column:serial_no"`
	IssueDescription string              `gorm:"column:issue_description;type:text;not null"`
	ServiceType      enums.ServiceType   `gorm:"column:service_type;type:text;not null"`
	ServiceAddress   *string             `gorm:"column:service_address;type:text"`
	PreferredContact *string             `gorm:"column:preferred_contact"`
	Accessories      *string             `gorm:"column:accessories;type:text"`
	WarrantyStatus   *string             `gorm:"column:warranty_status"`
	AttachmentPath   *string             `gorm:"column:attachment_path"`
	Priority         enums.Priority      `gorm:"column:priority;type:text;not null"`
	Status           enums.RequestStatus `gorm:"column:status;type:text;not null;index"`
	Version          int                 `gorm:"column:version;not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (RepairRequest) TableName() string { return "repair_requests" }

func (r *RepairRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}
