package models

import "time"

// TicketSequence holds the next sequence number for a date/device/service bucket.
type TicketSequence struct {
	SeqKey    string    `gorm:"column:seq_key;primaryKey"`
	NextValue int64     `gorm:"column:next_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (TicketSequence) TableName() string { return "ticket_sequences" }
