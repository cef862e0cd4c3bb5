package history

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Repository is append-only: entries can be inserted and read, never changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.StatusHistoryEntry) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.StatusHistoryEntry, error)
	Latest(ctx context.Context, requestID uuid.UUID) (*models.StatusHistoryEntry, error)
	CurrentRequestStatus(ctx context.Context, requestID uuid.UUID) (enums.RequestStatus, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a history repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	var entries []models.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) Latest(ctx context.Context, requestID uuid.UUID) (*models.StatusHistoryEntry, error) {
	var entry models.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CurrentRequestStatus reads the authoritative status from the request row.
func (r *repository) CurrentRequestStatus(ctx context.Context, requestID uuid.UUID) (enums.RequestStatus, error) {
	var req models.RepairRequest
	err := r.db.WithContext(ctx).
		Select("status").
		Where("id = ?", requestID).
		First(&req).Error
	if err != nil {
		return "", err
	}
	return req.Status, nil
}
