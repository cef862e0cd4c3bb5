package workflow

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
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type historyRecorder interface {
	RecordTransition(ctx context.Context, tx *gorm.DB, input history.TransitionInput) (*models.StatusHistoryEntry, error)
}

type deskAssigner interface {
	Assign(ctx context.Context, tx *gorm.DB, input assignments.AssignInput) (*models.Assignment, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transitionMetrics interface {
	IncTransition(from, to, action string)
	IncRejection(action, reason string)
	ObserveDuration(action string, d time.Duration)
}

// Service is the single authority for repair request status changes.
type Service interface {
	ApplyAction(ctx context.Context, input ApplyInput) (*Result, error)
	AvailableActions(ctx context.Context, requestID uuid.UUID, role enums.UserRole) ([]ActionOption, error)
}

// ApplyInput identifies the request, the action and who is taking it.
type ApplyInput struct {
	RequestID uuid.UUID
	Action    Action
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	// ExpectedStatus, when set, makes the call fail with a conflict if the
	// request has moved on since the caller last read it.
	ExpectedStatus *enums.RequestStatus
	Note           string
}

// Result describes a committed transition.
type Result struct {
	RequestID    uuid.UUID
	TicketCode   string
	Action       Action
	Previous     enums.RequestStatus
	Status       enums.RequestStatus
	HistoryEntry *models.StatusHistoryEntry
	Assignment   *models.Assignment
}

// ActionOption is an outgoing transition annotated with its guard outcome.
type ActionOption struct {
	Action     Action              `json:"action"`
	Next       enums.RequestStatus `json:"next_status"`
	Allowed    bool                `json:"allowed"`
	Reason     string              `json:"reason,omitempty"`
	AssignDesk enums.Desk          `json:"assign_desk,omitempty"`
}

// ServiceParams groups the workflow dependencies. Metrics and Logger are optional.
type ServiceParams struct {
	Repository  Repository
	TxRunner    txRunner
	History     historyRecorder
	Assignments deskAssigner
	Outbox      outboxPublisher
	Metrics     transitionMetrics
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	history     historyRecorder
	assignments deskAssigner
	outbox      outboxPublisher
	metrics     transitionMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the workflow state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("workflow repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.History == nil {
		return nil, fmt.Errorf("history recorder required")
	}
	if params.Assignments == nil {
		return nil, fmt.Errorf("assignment tracker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:        params.Repository,
		tx:          params.TxRunner,
		history:     params.History,
		assignments: params.Assignments,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) ApplyAction(ctx context.Context, input ApplyInput) (*Result, error) {
	start := s.now()
	if err := validateApplyInput(input); err != nil {
		s.recordRejection(ctx, input, err)
		return nil, err
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.applyInTx(ctx, tx, input)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply workflow action")
		}
		s.recordRejection(ctx, input, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(result.Previous), string(result.Status), string(result.Action))
		s.metrics.ObserveDuration(string(result.Action), s.now().Sub(start))
	}
	logCtx := s.logg.WithRepairRequestID(ctx, result.RequestID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"ticket_code": result.TicketCode,
		"action":      result.Action,
		"from_status": result.Previous,
		"to_status":   result.Status,
		"actor_id":    input.ActorID.String(),
	})
	s.logg.Info(logCtx, "workflow transition applied")
	return result, nil
}

func (s *service) applyInTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*Result, error) {
	repo := s.repo.WithTx(tx)

	req, err := repo.LockRequest(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock repair request")
	}

	if input.ExpectedStatus != nil && *input.ExpectedStatus != req.Status {
		return nil, staleError(*input.ExpectedStatus, req.Status)
	}

	transition, ok := Lookup(req.Status, input.Action)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAction, fmt.Sprintf("action %s is not allowed while request is %s", input.Action, req.Status)).
			WithDetails(map[string]any{"status": req.Status, "action": input.Action})
	}

	if input.ActorRole == enums.UserRoleCustomer {
		if !transition.CustomerAllowed {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "action is reserved for staff")
		}
		if req.CustomerID != input.ActorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request does not belong to customer")
		}
	}

	if err := s.checkGuard(ctx, repo, transition, req); err != nil {
		return nil, err
	}

	rows, err := repo.UpdateStatus(ctx, req.ID, req.Status, req.Version, transition.Next)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update request status")
	}
	if rows == 0 {
		return nil, staleError(req.Status, "")
	}

	actorID := input.ActorID
	entry, err := s.history.RecordTransition(ctx, tx, history.TransitionInput{
		RequestID: req.ID,
		Status:    transition.Next,
		Note:      historyNote(transition, input.Note),
		ActorID:   &actorID,
	})
	if err != nil {
		return nil, err
	}

	var assignment *models.Assignment
	if transition.HasAssignment() && input.ActorRole.IsStaff() {
		assignment, err = s.assignments.Assign(ctx, tx, assignments.AssignInput{
			RequestID: req.ID,
			Desk:      transition.AssignDesk,
			StaffID:   input.ActorID,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.emitTransition(ctx, tx, req, transition, input, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue transition events")
	}

	return &Result{
		RequestID:    req.ID,
		TicketCode:   req.TicketCode,
		Action:       transition.Action,
		Previous:     req.Status,
		Status:       transition.Next,
		HistoryEntry: entry,
		Assignment:   assignment,
	}, nil
}

func (s *service) checkGuard(ctx context.Context, repo Repository, transition Transition, req *models.RepairRequest) error {
	if transition.Guard == "" {
		return nil
	}
	in := GuardInput{Request: req}
	if GuardNeedsInvoice(transition.Guard) {
		inv, err := repo.FindInvoiceByRequest(ctx, req.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice for guard")
		}
		in.Invoice = inv
	}
	passed, reason, err := EvaluateGuard(transition.Guard, in)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "evaluate guard")
	}
	if !passed {
		return pkgerrors.New(pkgerrors.CodeGuardRejected, reason).
			WithDetails(map[string]any{"guard": transition.Guard, "action": transition.Action})
	}
	return nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, req *models.RepairRequest, transition Transition, input ApplyInput, entry *models.StatusHistoryEntry) error {
	actorID := input.ActorID
	actor := outbox.NewActorRef(&actorID, input.ActorRole)
	note := ""
	if entry != nil && entry.Note != nil {
		note = *entry.Note
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRequestStatusChanged,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.RequestStatusChangedEvent{
			RequestID:  req.ID,
			TicketCode: req.TicketCode,
			CustomerID: req.CustomerID,
			Action:     string(transition.Action),
			FromStatus: req.Status,
			ToStatus:   transition.Next,
			ChangedBy:  &actorID,
			Note:       note,
		},
	}); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.NotificationRequestedEvent{
			RecipientID: req.CustomerID,
			Type:        enums.NotificationTypeStatusUpdate,
			RequestID:   req.ID,
			TicketCode:  req.TicketCode,
			Status:      transition.Next,
			Message:     fmt.Sprintf("Your repair request %s is now %s.", req.TicketCode, transition.Next),
		},
	})
}

func (s *service) AvailableActions(ctx context.Context, requestID uuid.UUID, role enums.UserRole) ([]ActionOption, error) {
	req, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
	}

	var invoice *models.Invoice
	invoiceLoaded := false
	options := []ActionOption{}
	for _, transition := range ActionsFrom(req.Status) {
		if role == enums.UserRoleCustomer && !transition.CustomerAllowed {
			continue
		}
		if GuardNeedsInvoice(transition.Guard) && !invoiceLoaded {
			invoice, err = s.repo.FindInvoiceByRequest(ctx, req.ID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice for guard")
			}
			invoiceLoaded = true
		}
		passed, reason, err := EvaluateGuard(transition.Guard, GuardInput{Request: req, Invoice: invoice})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "evaluate guard")
		}
		options = append(options, ActionOption{
			Action:     transition.Action,
			Next:       transition.Next,
			Allowed:    passed,
			Reason:     reason,
			AssignDesk: transition.AssignDesk,
		})
	}
	return options, nil
}

func (s *service) recordRejection(ctx context.Context, input ApplyInput, err error) {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	if s.metrics != nil {
		s.metrics.IncRejection(string(input.Action), string(code))
	}
	logCtx := s.logg.WithRepairRequestID(ctx, input.RequestID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"action": input.Action,
		"code":   code,
	})
	if code == pkgerrors.CodeDependency || code == pkgerrors.CodeInternal {
		s.logg.Error(logCtx, "workflow action failed", err)
		return
	}
	s.logg.Warn(logCtx, "workflow action refused")
}

func validateApplyInput(input ApplyInput) error {
	if input.RequestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.ActorRole.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	if !input.Action.IsKnown() {
		return pkgerrors.New(pkgerrors.CodeInvalidAction, fmt.Sprintf("unknown action %q", input.Action)).
			WithDetails(map[string]any{"action": input.Action})
	}
	return nil
}

func staleError(expected, current enums.RequestStatus) error {
	details := map[string]any{"expected_status": expected}
	if current != "" {
		details["current_status"] = current
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "request was changed by another action; reload and retry").
		WithDetails(details)
}

func historyNote(transition Transition, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return transition.Note
	}
	return transition.Note + ": " + extra
}
