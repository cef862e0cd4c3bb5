package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/internal/assignments"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	"github.com/angelmondragon/repairdesk-backend/internal/workflow"
	dbpkg "github.com/angelmondragon/repairdesk-backend/pkg/db"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

const receivedNote = "Request received"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ticketCoder interface {
	NextTicketCode(ctx context.Context, deviceType string, serviceType enums.ServiceType, now time.Time) string
}

type historyLedger interface {
	RecordTransition(ctx context.Context, tx *gorm.DB, input history.TransitionInput) (*models.StatusHistoryEntry, error)
	RecordNoteTx(ctx context.Context, tx *gorm.DB, input history.NoteInput) (*models.StatusHistoryEntry, error)
}

type assignmentTracker interface {
	Assign(ctx context.Context, tx *gorm.DB, input assignments.AssignInput) (*models.Assignment, error)
	CountUnassigned(ctx context.Context) (int64, error)
}

type actionApplier interface {
	ApplyAction(ctx context.Context, input workflow.ApplyInput) (*workflow.Result, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the entry point for creating and reading repair requests.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*RequestDTO, error)
	Get(ctx context.Context, requestID uuid.UUID) (*RequestDTO, error)
	GetForCustomer(ctx context.Context, requestID, customerID uuid.UUID) (*RequestDTO, error)
	GetByTicketCode(ctx context.Context, code string) (*RequestDTO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*RequestPage, error)
	CustomerRequests(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RequestPage, error)
	UpdateDeviceDetails(ctx context.Context, input DeviceDetailsInput) (*RequestDTO, error)
	AddOnsiteNote(ctx context.Context, input NoteInput) (*models.StatusHistoryEntry, error)
	CustomerCancel(ctx context.Context, requestID, customerID uuid.UUID, reason string) (*workflow.Result, error)
	Dashboard(ctx context.Context) (*Dashboard, error)
}

// ServiceParams groups the request aggregate dependencies. Logger is optional.
type ServiceParams struct {
	Repository  Repository
	TxRunner    txRunner
	Sequence    ticketCoder
	History     historyLedger
	Assignments assignmentTracker
	Workflow    actionApplier
	Outbox      outboxPublisher
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	sequence    ticketCoder
	history     historyLedger
	assignments assignmentTracker
	workflow    actionApplier
	outbox      outboxPublisher
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the request aggregate service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, fmt.Errorf("request repository required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Sequence == nil:
		return nil, fmt.Errorf("ticket sequence required")
	case params.History == nil:
		return nil, fmt.Errorf("history ledger required")
	case params.Assignments == nil:
		return nil, fmt.Errorf("assignment tracker required")
	case params.Workflow == nil:
		return nil, fmt.Errorf("workflow required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:        params.Repository,
		tx:          params.TxRunner,
		sequence:    params.Sequence,
		history:     params.History,
		assignments: params.Assignments,
		workflow:    params.Workflow,
		outbox:      params.Outbox,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*RequestDTO, error) {
	input, err := normalizeCreate(input)
	if err != nil {
		return nil, err
	}

	// The ticket code is allocated in its own transaction so a sequence
	// failure can degrade to the fallback code without aborting this one.
	now := s.now()
	code := s.sequence.NextTicketCode(ctx, input.DeviceType, input.ServiceType, now)

	req := &models.RepairRequest{
		TicketCode:       code,
		CustomerID:       input.CustomerID,
		CreatedByUserID:  optionalActor(input.ActorID),
		DeviceType:       input.DeviceType,
		Brand:            input.Brand,
		Model:            input.Model,
		SerialNo:         input.SerialNo,
		IssueDescription: input.IssueDescription,
		ServiceType:      input.ServiceType,
		ServiceAddress:   input.ServiceAddress,
		PreferredContact: input.PreferredContact,
		Accessories:      input.Accessories,
		WarrantyStatus:   input.WarrantyStatus,
		AttachmentPath:   input.AttachmentPath,
		Priority:         input.Priority,
		Status:           enums.RequestStatusReceived,
		Version:          1,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_repair_requests_ticket_code") {
				return pkgerrors.New(pkgerrors.CodeConflict, "ticket code already issued; retry").
					WithDetails(map[string]any{"ticket_code": code})
			}
			return pkgerrors.FromDB(err, "insert repair request")
		}

		if _, err := s.history.RecordTransition(ctx, tx, history.TransitionInput{
			RequestID: req.ID,
			Status:    enums.RequestStatusReceived,
			Note:      receivedNote,
			ActorID:   optionalActor(input.ActorID),
		}); err != nil {
			return err
		}

		if input.ActorRole.IsStaff() {
			if _, err := s.assignments.Assign(ctx, tx, assignments.AssignInput{
				RequestID: req.ID,
				Desk:      enums.DeskRegistration,
				StaffID:   input.ActorID,
			}); err != nil {
				return err
			}
		}

		return s.emitCreated(ctx, tx, req, input)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create repair request")
		}
		return nil, err
	}

	logCtx := s.logg.WithRepairRequestID(ctx, req.ID.String())
	logCtx = s.logg.WithTicketCode(logCtx, req.TicketCode)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"service_type": req.ServiceType,
		"actor_role":   input.ActorRole,
	})
	s.logg.Info(logCtx, "repair request created")

	dto := NewRequestDTO(*req)
	return &dto, nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, req *models.RepairRequest, input CreateInput) error {
	actor := outbox.NewActorRef(optionalActor(input.ActorID), input.ActorRole)
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRequestCreated,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.RequestCreatedEvent{
			RequestID:   req.ID,
			TicketCode:  req.TicketCode,
			CustomerID:  req.CustomerID,
			ServiceType: req.ServiceType,
			Priority:    req.Priority,
			Status:      req.Status,
			CreatedBy:   req.CreatedByUserID,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue request created event")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.NotificationRequestedEvent{
			RecipientID: req.CustomerID,
			Type:        enums.NotificationTypeRequestReceived,
			RequestID:   req.ID,
			TicketCode:  req.TicketCode,
			Status:      req.Status,
			Message:     fmt.Sprintf("We received your repair request %s.", req.TicketCode),
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue request received notification")
	}
	return nil
}

func (s *service) Get(ctx context.Context, requestID uuid.UUID) (*RequestDTO, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	dto := NewRequestDTO(*req)
	return &dto, nil
}

func (s *service) GetForCustomer(ctx context.Context, requestID, customerID uuid.UUID) (*RequestDTO, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request does not belong to customer")
	}
	dto := NewRequestDTO(*req)
	return &dto, nil
}

func (s *service) GetByTicketCode(ctx context.Context, code string) (*RequestDTO, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket code required")
	}
	req, err := s.repo.FindByTicketCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
	}
	dto := NewRequestDTO(*req)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*RequestPage, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filters.ServiceType != nil && !filters.ServiceType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type filter")
	}
	if filters.Priority != nil && !filters.Priority.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid priority filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, filters, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list repair requests")
	}
	page, next := pagination.Trim(rows, params.Limit, func(row models.RepairRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	items := make([]RequestDTO, 0, len(page))
	for _, row := range page {
		items = append(items, NewRequestDTO(row))
	}
	return &RequestPage{Items: items, NextCursor: next}, nil
}

func (s *service) CustomerRequests(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*RequestPage, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	return s.List(ctx, ListFilters{CustomerID: &customerID}, params)
}

func (s *service) UpdateDeviceDetails(ctx context.Context, input DeviceDetailsInput) (*RequestDTO, error) {
	brand := strings.TrimSpace(input.Brand)
	model := strings.TrimSpace(input.Model)
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if brand == "" || model == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand and model are required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindByID(ctx, input.RequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
		}
		if req.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "closed requests cannot be edited").
				WithDetails(map[string]any{"status": req.Status})
		}

		updates := map[string]any{
			"brand":      brand,
			"model":      model,
			"serial_no":  trimmedOrNil(input.SerialNo),
			"updated_at": s.now().UTC(),
		}
		if _, err := repo.UpdateDeviceDetails(ctx, req.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update device details")
		}

		_, err = s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      fmt.Sprintf("Device details updated: %s %s", brand, model),
			ActorID:   optionalActor(input.ActorID),
		})
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update device details")
		}
		return nil, err
	}
	return s.Get(ctx, input.RequestID)
}

func (s *service) AddOnsiteNote(ctx context.Context, input NoteInput) (*models.StatusHistoryEntry, error) {
	note := strings.TrimSpace(input.Note)
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note is required")
	}

	var entry *models.StatusHistoryEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := s.repo.WithTx(tx).FindByID(ctx, input.RequestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
		}
		if req.ServiceType != enums.ServiceTypeOnsite {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "onsite notes are only recorded for onsite requests").
				WithDetails(map[string]any{"service_type": req.ServiceType})
		}
		if req.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "closed requests cannot be annotated").
				WithDetails(map[string]any{"status": req.Status})
		}
		entry, err = s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      note,
			ActorID:   optionalActor(input.ActorID),
		})
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add onsite note")
		}
		return nil, err
	}
	return entry, nil
}

func (s *service) CustomerCancel(ctx context.Context, requestID, customerID uuid.UUID, reason string) (*workflow.Result, error) {
	return s.workflow.ApplyAction(ctx, workflow.ApplyInput{
		RequestID: requestID,
		Action:    workflow.ActionCancel,
		ActorID:   customerID,
		ActorRole: enums.UserRoleCustomer,
		Note:      reason,
	})
}

func (s *service) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count requests by status")
	}
	unassigned, err := s.assignments.CountUnassigned(ctx)
	if err != nil {
		return nil, err
	}

	out := &Dashboard{ByStatus: map[enums.RequestStatus]int64{}, Unassigned: unassigned}
	for _, status := range enums.RequestStatuses() {
		out.ByStatus[status] = 0
	}
	for _, row := range counts {
		out.ByStatus[row.Status] = row.Count
		out.Total += row.Count
		if row.Status.IsTerminal() {
			out.Terminal += row.Count
		} else {
			out.Open += row.Count
		}
	}
	return out, nil
}

func (s *service) load(ctx context.Context, requestID uuid.UUID) (*models.RepairRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
	}
	return req, nil
}

func normalizeCreate(input CreateInput) (CreateInput, error) {
	if input.ActorID == uuid.Nil || !input.ActorRole.IsValid() {
		return input, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.ActorRole == enums.UserRoleCustomer {
		if input.CustomerID != uuid.Nil && input.CustomerID != input.ActorID {
			return input, pkgerrors.New(pkgerrors.CodeForbidden, "customers can only open requests for themselves")
		}
		input.CustomerID = input.ActorID
	}
	if input.CustomerID == uuid.Nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	input.DeviceType = strings.TrimSpace(input.DeviceType)
	input.Brand = strings.TrimSpace(input.Brand)
	input.Model = strings.TrimSpace(input.Model)
	input.IssueDescription = strings.TrimSpace(input.IssueDescription)
	input.SerialNo = trimmedOrNil(input.SerialNo)
	input.ServiceAddress = trimmedOrNil(input.ServiceAddress)
	input.PreferredContact = trimmedOrNil(input.PreferredContact)
	input.Accessories = trimmedOrNil(input.Accessories)
	input.WarrantyStatus = trimmedOrNil(input.WarrantyStatus)
	input.AttachmentPath = trimmedOrNil(input.AttachmentPath)

	missing := []string{}
	if input.DeviceType == "" {
		missing = append(missing, "device_type")
	}
	if input.Brand == "" {
		missing = append(missing, "brand")
	}
	if input.Model == "" {
		missing = append(missing, "model")
	}
	if input.IssueDescription == "" {
		missing = append(missing, "issue_description")
	}
	if len(missing) > 0 {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "required fields missing").
			WithDetails(map[string]any{"fields": missing})
	}
	if !input.ServiceType.IsValid() {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "invalid service type")
	}
	if input.ServiceType != enums.ServiceTypeDropoff && input.ServiceAddress == nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "service address required for pickup and onsite requests")
	}
	if input.Priority == "" {
		input.Priority = enums.PriorityNormal
	}
	if !input.Priority.IsValid() {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "invalid priority")
	}
	return input, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalActor(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
