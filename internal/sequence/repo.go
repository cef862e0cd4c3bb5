package sequence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
)

// Repository persists per-bucket ticket counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Seed(ctx context.Context, key string) error
	LockForUpdate(ctx context.Context, key string) (*models.TicketSequence, error)
	SetNext(ctx context.Context, key string, next int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a sequence repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Seed creates the counter at 1 unless it already exists.
func (r *repository) Seed(ctx context.Context, key string) error {
	row := models.TicketSequence{SeqKey: key, NextValue: 1}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seq_key"}}, DoNothing: true}).
		Create(&row).Error
}

func (r *repository) LockForUpdate(ctx context.Context, key string) (*models.TicketSequence, error) {
	var row models.TicketSequence
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seq_key = ?", key).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) SetNext(ctx context.Context, key string, next int64) error {
	return r.db.WithContext(ctx).
		Model(&models.TicketSequence{}).
		Where("seq_key = ?", key).
		Update("next_value", next).Error
}
