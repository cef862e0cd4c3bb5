package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/internal/assignments"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	dbpkg "github.com/angelmondragon/repairdesk-backend/pkg/db"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/outbox"
)

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	rejections  []string
}

func (m *recordingMetrics) IncTransition(from, to, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *recordingMetrics) IncRejection(action, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *recordingMetrics) ObserveDuration(string, time.Duration) {}

type harness struct {
	conn    *gorm.DB
	svc     Service
	metrics *recordingMetrics
}

type harnessOption func(*ServiceParams)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := dbpkg.NewFromConn(conn)

	historySvc, err := history.NewService(history.NewRepository(conn), client)
	require.NoError(t, err)
	assignmentSvc, err := assignments.NewService(assignments.NewRepository(conn), client)
	require.NoError(t, err)

	metrics := &recordingMetrics{}
	params := ServiceParams{
		Repository:  NewRepository(conn),
		TxRunner:    client,
		History:     historySvc,
		Assignments: assignmentSvc,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics:     metrics,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, metrics: metrics}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.RepairRequest {
	t.Helper()
	var req models.RepairRequest
	require.NoError(t, h.conn.First(&req, "id = ?", id).Error)
	return req
}

func (h *harness) count(t *testing.T, model any, requestColumn string, id uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Where(requestColumn+" = ?", id).Count(&n).Error)
	return n
}

func (h *harness) seedInvoice(t *testing.T, requestID uuid.UUID, quote *enums.QuoteStatus) {
	t.Helper()
	require.NoError(t, h.conn.Create(&models.Invoice{
		RequestID:     requestID,
		Status:        enums.InvoiceStatusDraft,
		QuoteStatus:   quote,
		Subtotal:      decimal.NewFromInt(50),
		TaxRate:       decimal.RequireFromString("0.13"),
		TaxAmount:     decimal.RequireFromString("6.50"),
		Total:         decimal.RequireFromString("56.50"),
		PaymentStatus: enums.PaymentStatusUnpaid,
	}).Error)
}

func staffInput(requestID uuid.UUID, action Action, staff uuid.UUID) ApplyInput {
	return ApplyInput{RequestID: requestID, Action: action, ActorID: staff, ActorRole: enums.UserRoleStaff}
}

func TestApplyActionAcceptDropoffAssignsRepairDesk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := dbtest.SeedRequest(t, h.conn)
	staff1 := uuid.New()

	res, err := h.svc.ApplyAction(ctx, staffInput(req.ID, ActionAcceptDropoff, staff1))
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusReceived, res.Previous)
	assert.Equal(t, enums.RequestStatusInRepair, res.Status)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, enums.DeskRepair, res.Assignment.Desk)
	assert.Equal(t, staff1, res.Assignment.AssignedTo)
	require.NotNil(t, res.HistoryEntry)
	assert.Equal(t, enums.RequestStatusInRepair, res.HistoryEntry.Status)

	stored := h.reload(t, req.ID)
	assert.Equal(t, enums.RequestStatusInRepair, stored.Status)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, req.TicketCode, stored.TicketCode)

	assert.Equal(t, int64(1), h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
	assert.Equal(t, int64(1), h.count(t, &models.Assignment{}, "request_id", req.ID))

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", req.ID).Order("created_at ASC").Find(&events).Error)
	require.Len(t, events, 2)
	types := []enums.OutboxEventType{events[0].EventType, events[1].EventType}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventRequestStatusChanged, enums.EventNotificationRequested}, types)

	assert.Equal(t, []string{"Received->In Repair"}, h.metrics.transitions)
}

func TestApplyActionGuardRejectsWrongServiceType(t *testing.T) {
	h := newHarness(t)
	req := dbtest.SeedRequest(t, h.conn)

	_, err := h.svc.ApplyAction(context.Background(), staffInput(req.ID, ActionStartPickup, uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGuardRejected))

	stored := h.reload(t, req.ID)
	assert.Equal(t, enums.RequestStatusReceived, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Zero(t, h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
	assert.Equal(t, []string{string(pkgerrors.CodeGuardRejected)}, h.metrics.rejections)
}

func TestApplyActionCompleteRequiresApprovedQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	staff := uuid.New()

	noInvoice := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.Status = enums.RequestStatusInRepair })
	_, err := h.svc.ApplyAction(ctx, staffInput(noInvoice.ID, ActionComplete, staff))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGuardRejected))

	pending := enums.QuoteStatusPending
	pendingReq := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.Status = enums.RequestStatusInRepair })
	h.seedInvoice(t, pendingReq.ID, &pending)
	_, err = h.svc.ApplyAction(ctx, staffInput(pendingReq.ID, ActionComplete, staff))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGuardRejected))
	assert.Equal(t, enums.RequestStatusInRepair, h.reload(t, pendingReq.ID).Status)

	approved := enums.QuoteStatusApproved
	approvedReq := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.Status = enums.RequestStatusInRepair })
	h.seedInvoice(t, approvedReq.ID, &approved)
	res, err := h.svc.ApplyAction(ctx, staffInput(approvedReq.ID, ActionComplete, staff))
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusBilled, res.Status)
	assert.Nil(t, res.Assignment)
	assert.Equal(t, enums.RequestStatusBilled, h.reload(t, approvedReq.ID).Status)
}

func TestApplyActionTerminalStatusesRejectEveryAction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, status := range []enums.RequestStatus{enums.RequestStatusDelivered, enums.RequestStatusRejected, enums.RequestStatusCancelled} {
		req := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.Status = status })
		for action := range knownActions {
			_, err := h.svc.ApplyAction(ctx, staffInput(req.ID, action, uuid.New()))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAction), "status %s action %s: %v", status, action, err)
		}
		assert.Equal(t, status, h.reload(t, req.ID).Status)
	}
}

func TestApplyActionUnknownActionAndMissingRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ApplyAction(ctx, staffInput(uuid.New(), Action("teleport"), uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAction))

	_, err = h.svc.ApplyAction(ctx, staffInput(uuid.New(), ActionReject, uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.ApplyAction(ctx, ApplyInput{RequestID: uuid.New(), Action: ActionReject, ActorRole: enums.UserRoleStaff})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

type failingHistory struct{}

func (failingHistory) RecordTransition(ctx context.Context, tx *gorm.DB, input history.TransitionInput) (*models.StatusHistoryEntry, error) {
	return nil, errors.New("disk full")
}

type failingAssigner struct{}

func (failingAssigner) Assign(ctx context.Context, tx *gorm.DB, input assignments.AssignInput) (*models.Assignment, error) {
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("lock timeout"), "insert assignment")
}

func TestApplyActionRollsBackWhenHistoryInsertFails(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.History = failingHistory{} })
	req := dbtest.SeedRequest(t, h.conn)

	_, err := h.svc.ApplyAction(context.Background(), staffInput(req.ID, ActionAcceptDropoff, uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	stored := h.reload(t, req.ID)
	assert.Equal(t, enums.RequestStatusReceived, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Zero(t, h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
	assert.Zero(t, h.count(t, &models.Assignment{}, "request_id", req.ID))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}, "aggregate_id", req.ID))
}

func TestApplyActionRollsBackWhenAssignmentFails(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Assignments = failingAssigner{} })
	req := dbtest.SeedRequest(t, h.conn)

	_, err := h.svc.ApplyAction(context.Background(), staffInput(req.ID, ActionAcceptDropoff, uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	assert.Equal(t, enums.RequestStatusReceived, h.reload(t, req.ID).Status)
	assert.Zero(t, h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
}

func TestApplyActionExpectedStatusMismatchIsConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := dbtest.SeedRequest(t, h.conn)
	received := enums.RequestStatusReceived

	first := staffInput(req.ID, ActionAcceptDropoff, uuid.New())
	first.ExpectedStatus = &received
	_, err := h.svc.ApplyAction(ctx, first)
	require.NoError(t, err)

	second := staffInput(req.ID, ActionReject, uuid.New())
	second.ExpectedStatus = &received
	_, err = h.svc.ApplyAction(ctx, second)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, enums.RequestStatusInRepair, h.reload(t, req.ID).Status)
}

type staleRepo struct {
	Repository
}

func (r staleRepo) WithTx(tx *gorm.DB) Repository {
	return staleRepo{Repository: r.Repository.WithTx(tx)}
}

func (staleRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.RequestStatus, version int, to enums.RequestStatus) (int64, error) {
	return 0, nil
}

func TestApplyActionVersionMismatchIsConflict(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Repository = staleRepo{Repository: p.Repository} })
	req := dbtest.SeedRequest(t, h.conn)

	_, err := h.svc.ApplyAction(context.Background(), staffInput(req.ID, ActionReject, uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Zero(t, h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
}

func TestApplyActionConcurrentConflictingActionsApplyOnce(t *testing.T) {
	h := newHarness(t)
	req := dbtest.SeedRequest(t, h.conn)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := ActionAcceptDropoff
			if i%2 == 1 {
				action = ActionReject
			}
			_, errs[i] = h.svc.ApplyAction(context.Background(), staffInput(req.ID, action, uuid.New()))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAction) || pkgerrors.IsCode(err, pkgerrors.CodeConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))
	assert.Equal(t, 2, h.reload(t, req.ID).Version)
}

func TestApplyActionCustomerCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := dbtest.SeedRequest(t, h.conn)

	_, err := h.svc.ApplyAction(ctx, ApplyInput{RequestID: req.ID, Action: ActionCancel, ActorID: uuid.New(), ActorRole: enums.UserRoleCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.ApplyAction(ctx, ApplyInput{RequestID: req.ID, Action: ActionReject, ActorID: req.CustomerID, ActorRole: enums.UserRoleCustomer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	res, err := h.svc.ApplyAction(ctx, ApplyInput{RequestID: req.ID, Action: ActionCancel, ActorID: req.CustomerID, ActorRole: enums.UserRoleCustomer, Note: "found a cheaper shop"})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusCancelled, res.Status)
	require.NotNil(t, res.HistoryEntry.Note)
	assert.Equal(t, "Request cancelled: found a cheaper shop", *res.HistoryEntry.Note)
	assert.Nil(t, res.Assignment)
}

func TestApplyActionPickupPathToBilling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	staff := uuid.New()
	req := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.ServiceType = enums.ServiceTypePickup })

	for _, action := range []Action{ActionStartPickup, ActionPickupReceived, ActionAtWarehouse, ActionForwardRepair} {
		_, err := h.svc.ApplyAction(ctx, staffInput(req.ID, action, staff))
		require.NoError(t, err, "action %s", action)
	}
	assert.Equal(t, enums.RequestStatusInRepair, h.reload(t, req.ID).Status)
	assert.Equal(t, int64(4), h.count(t, &models.StatusHistoryEntry{}, "request_id", req.ID))

	var latest models.StatusHistoryEntry
	require.NoError(t, h.conn.Where("request_id = ?", req.ID).Order("id DESC").First(&latest).Error)
	assert.Equal(t, h.reload(t, req.ID).Status, latest.Status)
}

func TestAvailableActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := dbtest.SeedRequest(t, h.conn)

	options, err := h.svc.AvailableActions(ctx, req.ID, enums.UserRoleStaff)
	require.NoError(t, err)
	byAction := map[Action]ActionOption{}
	for _, opt := range options {
		byAction[opt.Action] = opt
	}
	require.Len(t, byAction, 5)
	assert.True(t, byAction[ActionAcceptDropoff].Allowed)
	assert.False(t, byAction[ActionStartPickup].Allowed)
	assert.NotEmpty(t, byAction[ActionStartPickup].Reason)
	assert.True(t, byAction[ActionReject].Allowed)

	customerOptions, err := h.svc.AvailableActions(ctx, req.ID, enums.UserRoleCustomer)
	require.NoError(t, err)
	require.Len(t, customerOptions, 1)
	assert.Equal(t, ActionCancel, customerOptions[0].Action)

	inRepair := dbtest.SeedRequest(t, h.conn, func(r *models.RepairRequest) { r.Status = enums.RequestStatusInRepair })
	options, err = h.svc.AvailableActions(ctx, inRepair.ID, enums.UserRoleStaff)
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.False(t, options[0].Allowed)

	_, err = h.svc.AvailableActions(ctx, uuid.New(), enums.UserRoleStaff)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
