package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Assignment records a desk hand-off. Rows are never updated; the newest row per desk is current.
type Assignment struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID  uuid.UUID  `gorm:"column:request_id;type:uuid;not null;index:idx_assignments_request_desk,priority:1"`
	Desk       enums.Desk `gorm:"column:desk;type:text;not null;index:idx_assignments_request_desk,priority:2"`
	AssignedTo uuid.UUID  `gorm:"column:assigned_to;type:uuid;not null;index"`
	AssignedAt time.Time  `gorm:"column:assigned_at;not null"`
}

func (Assignment) TableName() string { return "assignments" }
