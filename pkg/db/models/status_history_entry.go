package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// StatusHistoryEntry is an append-only audit row. Status is the request status as of the entry.
type StatusHistoryEntry struct {
	ID           int64               `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID    uuid.UUID           `gorm:"column:request_id;type:uuid;not null;index:idx_status_history_request_created,priority:1"`
	Status       enums.RequestStatus `gorm:"column:status;type:text;not null"`
	Note         *string             `gorm:"column:note;type:text"`
	ChangedBy    *uuid.UUID          `gorm:"column:changed_by;type:uuid"`
	IsAnnotation bool                `gorm:"column:is_annotation;not null;default:false"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_status_history_request_created,priority:2"`
}

func (StatusHistoryEntry) TableName() string { return "request_status_history" }
