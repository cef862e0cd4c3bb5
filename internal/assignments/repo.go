package assignments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

// Repository stores desk hand-offs. Rows are only ever inserted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.Assignment) error
	FindRequest(ctx context.Context, requestID uuid.UUID) (*models.RepairRequest, error)
	Latest(ctx context.Context, requestID uuid.UUID, desk enums.Desk) (*models.Assignment, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Assignment, error)
	ListCurrentForStaff(ctx context.Context, staffID uuid.UUID, desk *enums.Desk, cursor *pagination.Cursor, limit int) ([]CurrentAssignment, error)
	CountForRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
	CountUnassigned(ctx context.Context) (int64, error)
}

// CurrentAssignment joins the latest desk assignment with its request summary.
type CurrentAssignment struct {
	AssignmentID int64               `gorm:"column:assignment_id"`
	RequestID    uuid.UUID           `gorm:"column:request_id"`
	TicketCode   string              `gorm:"column:ticket_code"`
	Status       enums.RequestStatus `gorm:"column:status"`
	Priority     enums.Priority      `gorm:"column:priority"`
	Desk         enums.Desk          `gorm:"column:desk"`
	AssignedAt   time.Time           `gorm:"column:assigned_at"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

// FindRequest share-locks the request so it cannot close while a hand-off is written.
func (r *repository) FindRequest(ctx context.Context, requestID uuid.UUID) (*models.RepairRequest, error) {
	var req models.RepairRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id", "status").
		Where("id = ?", requestID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) Latest(ctx context.Context, requestID uuid.UUID, desk enums.Desk) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND desk = ?", requestID, desk).
		Order("id DESC").
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListCurrentForStaff returns requests whose newest assignment at a desk belongs to staffID.
func (r *repository) ListCurrentForStaff(ctx context.Context, staffID uuid.UUID, desk *enums.Desk, cursor *pagination.Cursor, limit int) ([]CurrentAssignment, error) {
	latest := r.db.Model(&models.Assignment{}).
		Select("MAX(id)").
		Group("request_id, desk")

	query := r.db.WithContext(ctx).
		Table("assignments AS a").
		Select("a.id AS assignment_id, a.request_id, r.ticket_code, r.status, r.priority, a.desk, a.assigned_at").
		Joins("JOIN repair_requests r ON r.id = a.request_id").
		Where("a.assigned_to = ?", staffID).
		Where("a.id IN (?)", latest)
	if desk != nil {
		query = query.Where("a.desk = ?", *desk)
	}
	if cursor != nil {
		query = query.Where("(a.assigned_at < ?) OR (a.assigned_at = ? AND a.request_id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []CurrentAssignment
	err := query.
		Order("a.assigned_at DESC").
		Order("a.request_id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountForRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return count, err
}

// CountUnassigned counts open requests with no assignment row at any desk.
func (r *repository) CountUnassigned(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RepairRequest{}).
		Where("NOT EXISTS (SELECT 1 FROM assignments a WHERE a.request_id = repair_requests.id)").
		Where("status NOT IN ?", []enums.RequestStatus{enums.RequestStatusDelivered, enums.RequestStatusRejected, enums.RequestStatusCancelled}).
		Count(&count).Error
	return count, err
}
