package requests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

// Repository persists repair requests. Status is never written here; the
// workflow repository owns status changes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.RepairRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error)
	FindByTicketCode(ctx context.Context, code string) (*models.RepairRequest, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.RepairRequest, error)
	UpdateDeviceDetails(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

// StatusCount is one row of the per-status dashboard aggregate.
type StatusCount struct {
	Status enums.RequestStatus `gorm:"column:status"`
	Count  int64               `gorm:"column:count"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repair request repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.RepairRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RepairRequest, error) {
	var req models.RepairRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindByTicketCode(ctx context.Context, code string) (*models.RepairRequest, error) {
	var req models.RepairRequest
	if err := r.db.WithContext(ctx).Where("ticket_code = ?", code).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.RepairRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.RepairRequest{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CustomerID != nil {
		query = query.Where("customer_id = ?", *filters.CustomerID)
	}
	if filters.ServiceType != nil {
		query = query.Where("service_type = ?", *filters.ServiceType)
	}
	if filters.Priority != nil {
		query = query.Where("priority = ?", *filters.Priority)
	}
	if filters.Unassigned {
		query = query.Where("NOT EXISTS (SELECT 1 FROM assignments a WHERE a.request_id = repair_requests.id)")
	}
	if filters.OpenOnly {
		query = query.Where("status NOT IN ?", terminalStatuses())
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.RepairRequest
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateDeviceDetails(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RepairRequest{}).
		Where("id = ?", id).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.RepairRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func terminalStatuses() []enums.RequestStatus {
	out := []enums.RequestStatus{}
	for _, status := range enums.RequestStatuses() {
		if status.IsTerminal() {
			out = append(out, status)
		}
	}
	return out
}
