package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Repository persists invoices and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindByRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error)
	// ExistingForRequest returns nil without an error when the request has no invoice yet.
	ExistingForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateItem(ctx context.Context, item *models.InvoiceItem) error
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error)
	// FindRequest share-locks the owning request so its status cannot move mid-operation.
	FindRequest(ctx context.Context, requestID uuid.UUID) (*models.RepairRequest, error)
	ListStalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]StaleQuote, error)
	MarkQuoteReminded(ctx context.Context, invoiceID uuid.UUID, quotedAt, at time.Time) (int64, error)
}

// StaleQuote is a pending quote the customer has not answered.
type StaleQuote struct {
	InvoiceID  uuid.UUID           `gorm:"column:invoice_id"`
	RequestID  uuid.UUID           `gorm:"column:request_id"`
	CustomerID uuid.UUID           `gorm:"column:customer_id"`
	TicketCode string              `gorm:"column:ticket_code"`
	Status     enums.RequestStatus `gorm:"column:status"`
	Total      string              `gorm:"column:total"`
	QuotedAt   time.Time           `gorm:"column:quoted_at"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an invoice repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Omit("Items").Create(invoice).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("request_id = ?", requestID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) ExistingForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	var rows []models.Invoice
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateItem(ctx context.Context, item *models.InvoiceItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	var items []models.InvoiceItem
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repository) FindRequest(ctx context.Context, requestID uuid.UUID) (*models.RepairRequest, error) {
	var req models.RepairRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", requestID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListStalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]StaleQuote, error) {
	var rows []StaleQuote
	err := r.db.WithContext(ctx).
		Table("invoices AS i").
		Select("i.id AS invoice_id, i.request_id, r.customer_id, r.ticket_code, r.status, i.total, i.quoted_at").
		Joins("JOIN repair_requests r ON r.id = i.request_id").
		Where("i.quote_status = ?", enums.QuoteStatusPending).
		Where("i.status = ?", enums.InvoiceStatusDraft).
		Where("i.quoted_at IS NOT NULL AND i.quoted_at < ?", quotedBefore).
		Where("i.quote_reminded_at IS NULL").
		Order("i.quoted_at ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// MarkQuoteReminded stamps the pending quote round that was quoted at or
// before quotedAt. Zero rows means another run already reminded it or the
// quote was decided or re-issued since.
func (r *repository) MarkQuoteReminded(ctx context.Context, invoiceID uuid.UUID, quotedAt, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Where("quote_status = ?", enums.QuoteStatusPending).
		Where("quoted_at <= ?", quotedAt).
		Where("quote_reminded_at IS NULL").
		Update("quote_reminded_at", at)
	return res.RowsAffected, res.Error
}
