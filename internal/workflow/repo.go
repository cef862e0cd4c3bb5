package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Repository reads and conditionally updates repair request status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRequest(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error)
	LockRequest(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error)
	// UpdateStatus only applies when status and version still match; it returns rows affected.
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.RequestStatus, version int, to enums.RequestStatus) (int64, error)
	FindInvoiceByRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a workflow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRequest(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error) {
	var req models.RepairRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) LockRequest(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error) {
	var req models.RepairRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.RequestStatus, version int, to enums.RequestStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RepairRequest{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		Updates(map[string]any{
			"status":     to,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindInvoiceByRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
