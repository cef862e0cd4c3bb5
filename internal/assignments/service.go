package assignments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service tracks which staff member owns a ticket at each desk.
type Service interface {
	// Assign inserts a new hand-off for an open request. A nil tx runs in its
	// own transaction.
	Assign(ctx context.Context, tx *gorm.DB, input AssignInput) (*models.Assignment, error)
	CurrentAssigneeFor(ctx context.Context, requestID uuid.UUID, desk enums.Desk) (*models.Assignment, error)
	ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Assignment, error)
	MyAssignments(ctx context.Context, staffID uuid.UUID, desk *enums.Desk, params pagination.Params) (*MyAssignmentsPage, error)
	IsUnassigned(ctx context.Context, requestID uuid.UUID) (bool, error)
	CountUnassigned(ctx context.Context) (int64, error)
}

// AssignInput names the desk and staff member taking over a request.
type AssignInput struct {
	RequestID uuid.UUID
	Desk      enums.Desk
	StaffID   uuid.UUID
}

// MyAssignmentsPage is a cursor page of a staff member's current assignments.
type MyAssignmentsPage struct {
	Items      []CurrentAssignment
	NextCursor string
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds the assignment tracker.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) Assign(ctx context.Context, tx *gorm.DB, input AssignInput) (*models.Assignment, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if input.StaffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	if !input.Desk.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid desk")
	}

	assignment := &models.Assignment{
		RequestID:  input.RequestID,
		Desk:       input.Desk,
		AssignedTo: input.StaffID,
		AssignedAt: s.now().UTC(),
	}
	insert := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindRequest(ctx, input.RequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
		}
		if req.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("request is %s and can no longer be assigned", req.Status)).
				WithDetails(map[string]any{"status": req.Status})
		}
		if err := repo.Create(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert assignment")
		}
		return nil
	}

	var err error
	if tx != nil {
		err = insert(tx)
	} else {
		err = s.tx.WithTx(ctx, insert)
	}
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *service) CurrentAssigneeFor(ctx context.Context, requestID uuid.UUID, desk enums.Desk) (*models.Assignment, error) {
	if !desk.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid desk")
	}
	assignment, err := s.repo.Latest(ctx, requestID, desk)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current assignment")
	}
	return assignment, nil
}

func (s *service) ListForRequest(ctx context.Context, requestID uuid.UUID) ([]models.Assignment, error) {
	rows, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	return rows, nil
}

func (s *service) MyAssignments(ctx context.Context, staffID uuid.UUID, desk *enums.Desk, params pagination.Params) (*MyAssignmentsPage, error) {
	if staffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if desk != nil && !desk.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid desk")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListCurrentForStaff(ctx, staffID, desk, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list my assignments")
	}

	items, next := pagination.Trim(rows, params.Limit, func(row CurrentAssignment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.AssignedAt, ID: row.RequestID}
	})
	page := &MyAssignmentsPage{Items: items, NextCursor: next}
	return page, nil
}

func (s *service) IsUnassigned(ctx context.Context, requestID uuid.UUID) (bool, error) {
	count, err := s.repo.CountForRequest(ctx, requestID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count assignments")
	}
	return count == 0, nil
}

func (s *service) CountUnassigned(ctx context.Context) (int64, error) {
	count, err := s.repo.CountUnassigned(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unassigned requests")
	}
	return count, nil
}
