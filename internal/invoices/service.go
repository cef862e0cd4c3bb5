package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/internal/history"
	dbpkg "github.com/angelmondragon/repairdesk-backend/pkg/db"
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

type noteRecorder interface {
	RecordNoteTx(ctx context.Context, tx *gorm.DB, input history.NoteInput) (*models.StatusHistoryEntry, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the invoice and quote sub-workflow.
type Service interface {
	EnsureInvoice(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error)
	AddLineItem(ctx context.Context, input LineItemInput) (*models.Invoice, error)
	GenerateQuote(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error)
	ApproveQuote(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error)
	RejectQuote(ctx context.Context, invoiceID, actorID uuid.UUID, reason string) (*models.Invoice, error)
	CustomerApproveQuote(ctx context.Context, invoiceID, customerID uuid.UUID) (*models.Invoice, error)
	CustomerRejectQuote(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error)
	Finalize(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error)
	RecordPayment(ctx context.Context, input PaymentInput) (*models.Invoice, error)
	GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error)
	GetWithItems(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	StalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]StaleQuote, error)
	// ClaimQuoteReminder marks the quote round as reminded inside tx. It
	// returns false when the round was already reminded or is no longer pending.
	ClaimQuoteReminder(ctx context.Context, tx *gorm.DB, quote StaleQuote) (bool, error)
}

// LineItemInput describes one charge added to a draft invoice.
type LineItemInput struct {
	InvoiceID uuid.UUID
	Item      string
	Unit      string
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	ActorID   uuid.UUID
}

// PaymentInput records the settlement outcome of a finalized invoice.
type PaymentInput struct {
	InvoiceID uuid.UUID
	Status    enums.PaymentStatus
	ActorID   uuid.UUID
}

// ServiceParams groups the invoice dependencies. Logger is optional.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	History    noteRecorder
	Outbox     outboxPublisher
	TaxRate    decimal.Decimal
	Logger     *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	history noteRecorder
	outbox  outboxPublisher
	taxRate decimal.Decimal
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the invoice service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.History == nil {
		return nil, fmt.Errorf("history recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.TaxRate.IsNegative() || params.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be within [0, 1)")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TxRunner,
		history: params.History,
		outbox:  params.Outbox,
		taxRate: params.TaxRate,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) EnsureInvoice(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	var invoice *models.Invoice
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := loadRequest(ctx, repo, requestID); err != nil {
			return err
		}
		var err error
		invoice, err = s.ensureInTx(ctx, repo, requestID, actorID)
		return err
	})
	if err != nil {
		return nil, wrapUntyped(err, "ensure invoice")
	}
	return s.GetWithItems(ctx, invoice.ID)
}

func (s *service) ensureInTx(ctx context.Context, repo Repository, requestID, actorID uuid.UUID) (*models.Invoice, error) {
	existing, err := repo.ExistingForRequest(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if existing != nil {
		return existing, nil
	}

	invoice := &models.Invoice{
		RequestID:     requestID,
		CreatedBy:     optionalActor(actorID),
		Status:        enums.InvoiceStatusDraft,
		Subtotal:      decimal.Zero,
		TaxRate:       s.taxRate,
		TaxAmount:     decimal.Zero,
		Total:         decimal.Zero,
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
	if err := repo.Create(ctx, invoice); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_invoices_request") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice was created concurrently; retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}
	return invoice, nil
}

func (s *service) AddLineItem(ctx context.Context, input LineItemInput) (*models.Invoice, error) {
	if err := validateLineItem(input); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := repo.LockByID(ctx, input.InvoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice")
		}
		req, err := loadRequest(ctx, repo, invoice.RequestID)
		if err != nil {
			return err
		}
		if err := ensureEditable(req, invoice); err != nil {
			return err
		}

		item := &models.InvoiceItem{
			InvoiceID: invoice.ID,
			Item:      strings.TrimSpace(input.Item),
			Unit:      strings.TrimSpace(input.Unit),
			Qty:       input.Qty,
			UnitPrice: input.UnitPrice,
			Subtotal:  LineSubtotal(input.Qty, input.UnitPrice),
		}
		if err := repo.CreateItem(ctx, item); err != nil {
			return pkgerrors.FromDB(err, "insert invoice item")
		}
		return s.recomputeTotals(ctx, repo, invoice)
	})
	if err != nil {
		return nil, wrapUntyped(err, "add line item")
	}

	logCtx := s.logg.WithField(ctx, "invoice_id", input.InvoiceID.String())
	s.logg.Info(logCtx, "invoice line item added")
	return s.GetWithItems(ctx, input.InvoiceID)
}

func (s *service) recomputeTotals(ctx context.Context, repo Repository, invoice *models.Invoice) error {
	items, err := repo.ListItems(ctx, invoice.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoice items")
	}
	totals := ComputeTotals(items, invoice.TaxRate)
	if err := repo.Update(ctx, invoice.ID, map[string]any{
		"subtotal":   totals.Subtotal,
		"tax_amount": totals.TaxAmount,
		"total":      totals.Total,
	}); err != nil {
		return pkgerrors.FromDB(err, "update invoice totals")
	}
	invoice.Subtotal = totals.Subtotal
	invoice.TaxAmount = totals.TaxAmount
	invoice.Total = totals.Total
	return nil
}

func (s *service) GenerateQuote(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var invoiceID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := loadRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if req.Status != enums.RequestStatusInRepair {
			return stateError(fmt.Sprintf("quotes can only be generated while the request is %s", enums.RequestStatusInRepair), req, nil)
		}
		ensured, err := s.ensureInTx(ctx, repo, requestID, actorID)
		if err != nil {
			return err
		}
		invoice, err := repo.LockByID(ctx, ensured.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice")
		}
		invoiceID = invoice.ID

		if invoice.Status == enums.InvoiceStatusFinalized {
			return stateError("invoice is already finalized", req, invoice)
		}
		if invoice.QuoteStatusIs(enums.QuoteStatusPending) {
			return nil
		}
		if invoice.QuoteStatusIs(enums.QuoteStatusApproved) {
			return stateError("quote is already approved", req, invoice)
		}
		items, err := repo.ListItems(ctx, invoice.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoice items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "add at least one line item before generating a quote")
		}

		quotedAt := s.now().UTC()
		pending := enums.QuoteStatusPending
		if err := repo.Update(ctx, invoice.ID, map[string]any{
			"quote_status":      pending,
			"quoted_at":         quotedAt,
			"quote_reminded_at": nil,
			"quote_note":        nil,
			"quote_decided_by":  nil,
			"quote_decided_at":  nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote status")
		}

		if _, err := s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      fmt.Sprintf("Quote generated: total %s", invoice.Total.StringFixed(moneyPlaces)),
			ActorID:   optionalActor(actorID),
		}); err != nil {
			return err
		}

		actor := outbox.NewActorRef(optionalActor(actorID), enums.UserRoleStaff)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteGenerated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         actor,
			Data: payloads.QuoteGeneratedEvent{
				InvoiceID:  invoice.ID,
				RequestID:  req.ID,
				CustomerID: req.CustomerID,
				Subtotal:   invoice.Subtotal,
				TaxAmount:  invoice.TaxAmount,
				Total:      invoice.Total,
				QuotedAt:   quotedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue quote generated event")
		}
		return s.notifyCustomer(ctx, tx, req, invoice.ID, actor, enums.NotificationTypeQuoteReady,
			fmt.Sprintf("A quote of %s is ready for repair request %s.", invoice.Total.StringFixed(moneyPlaces), req.TicketCode))
	})
	if err != nil {
		return nil, wrapUntyped(err, "generate quote")
	}

	logCtx := s.logg.WithRepairRequestID(ctx, requestID.String())
	logCtx = s.logg.WithField(logCtx, "invoice_id", invoiceID.String())
	s.logg.Info(logCtx, "quote pending customer approval")
	return s.GetWithItems(ctx, invoiceID)
}

func (s *service) ApproveQuote(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error) {
	return s.decide(ctx, decision{invoiceID: invoiceID, actorID: actorID, approve: true})
}

func (s *service) RejectQuote(ctx context.Context, invoiceID, actorID uuid.UUID, reason string) (*models.Invoice, error) {
	return s.decide(ctx, decision{invoiceID: invoiceID, actorID: actorID, reason: reason})
}

func (s *service) CustomerApproveQuote(ctx context.Context, invoiceID, customerID uuid.UUID) (*models.Invoice, error) {
	return s.decide(ctx, decision{invoiceID: invoiceID, actorID: customerID, approve: true, byCustomer: true})
}

func (s *service) CustomerRejectQuote(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error) {
	return s.decide(ctx, decision{invoiceID: invoiceID, actorID: customerID, reason: reason, byCustomer: true})
}

type decision struct {
	invoiceID  uuid.UUID
	actorID    uuid.UUID
	approve    bool
	byCustomer bool
	reason     string
}

func (d decision) status() enums.QuoteStatus {
	if d.approve {
		return enums.QuoteStatusApproved
	}
	return enums.QuoteStatusRejected
}

func (d decision) role() enums.UserRole {
	if d.byCustomer {
		return enums.UserRoleCustomer
	}
	return enums.UserRoleStaff
}

func (d decision) note() string {
	var note string
	switch {
	case d.byCustomer && d.approve:
		note = "Customer approved the quote"
	case d.byCustomer:
		note = "Customer rejected the quote"
	case d.approve:
		note = "Quote approved"
	default:
		note = "Quote rejected"
	}
	if reason := strings.TrimSpace(d.reason); reason != "" && !d.approve {
		note += ": " + reason
	}
	return note
}

func (s *service) decide(ctx context.Context, d decision) (*models.Invoice, error) {
	if d.invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if d.actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := lockInvoice(ctx, repo, d.invoiceID)
		if err != nil {
			return err
		}
		req, err := loadRequest(ctx, repo, invoice.RequestID)
		if err != nil {
			return err
		}
		if d.byCustomer && req.CustomerID != d.actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "quote does not belong to customer")
		}
		if !invoice.QuoteStatusIs(enums.QuoteStatusPending) {
			return stateError("only pending quotes can be approved or rejected", req, invoice)
		}

		status := d.status()
		decidedAt := s.now().UTC()
		updates := map[string]any{
			"quote_status":     status,
			"quote_decided_by": d.actorID,
			"quote_decided_at": decidedAt,
			"quote_note":       nil,
		}
		if reason := strings.TrimSpace(d.reason); reason != "" {
			updates["quote_note"] = reason
		}
		if err := repo.Update(ctx, invoice.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote decision")
		}

		actorID := d.actorID
		if _, err := s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      d.note(),
			ActorID:   &actorID,
		}); err != nil {
			return err
		}

		actor := outbox.NewActorRef(&actorID, d.role())
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuoteDecided,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         actor,
			Data: payloads.QuoteDecidedEvent{
				InvoiceID:   invoice.ID,
				RequestID:   req.ID,
				CustomerID:  req.CustomerID,
				QuoteStatus: status,
				DecidedBy:   actorID,
				ByCustomer:  d.byCustomer,
				Reason:      strings.TrimSpace(d.reason),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue quote decided event")
		}
		if d.byCustomer {
			return nil
		}
		return s.notifyCustomer(ctx, tx, req, invoice.ID, actor, enums.NotificationTypeQuoteDecision,
			fmt.Sprintf("The quote for repair request %s was %s.", req.TicketCode, strings.ToLower(string(status))))
	})
	if err != nil {
		return nil, wrapUntyped(err, "decide quote")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_id":   d.invoiceID.String(),
		"quote_status": d.status(),
		"by_customer":  d.byCustomer,
		"actor_id":     d.actorID.String(),
	})
	s.logg.Info(logCtx, "quote decided")
	return s.GetWithItems(ctx, d.invoiceID)
}

func (s *service) Finalize(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := lockInvoice(ctx, repo, invoiceID)
		if err != nil {
			return err
		}
		req, err := loadRequest(ctx, repo, invoice.RequestID)
		if err != nil {
			return err
		}
		if invoice.Status == enums.InvoiceStatusFinalized {
			return stateError("invoice is already finalized", req, invoice)
		}
		if req.Status != enums.RequestStatusBilled {
			return stateError(fmt.Sprintf("invoices are finalized at the billing desk once the request is %s", enums.RequestStatusBilled), req, invoice)
		}

		finalizedAt := s.now().UTC()
		if err := repo.Update(ctx, invoice.ID, map[string]any{
			"status":       enums.InvoiceStatusFinalized,
			"finalized_at": finalizedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize invoice")
		}

		if _, err := s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      fmt.Sprintf("Invoice finalized: total %s", invoice.Total.StringFixed(moneyPlaces)),
			ActorID:   optionalActor(actorID),
		}); err != nil {
			return err
		}

		actor := outbox.NewActorRef(optionalActor(actorID), enums.UserRoleStaff)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceFinalized,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         actor,
			Data: payloads.InvoiceFinalizedEvent{
				InvoiceID:   invoice.ID,
				RequestID:   req.ID,
				CustomerID:  req.CustomerID,
				Total:       invoice.Total,
				FinalizedAt: finalizedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue invoice finalized event")
		}
		return s.notifyCustomer(ctx, tx, req, invoice.ID, actor, enums.NotificationTypeInvoiceIssued,
			fmt.Sprintf("Your invoice for repair request %s totals %s.", req.TicketCode, invoice.Total.StringFixed(moneyPlaces)))
	})
	if err != nil {
		return nil, wrapUntyped(err, "finalize invoice")
	}

	logCtx := s.logg.WithField(ctx, "invoice_id", invoiceID.String())
	s.logg.Info(logCtx, "invoice finalized")
	return s.GetWithItems(ctx, invoiceID)
}

func (s *service) RecordPayment(ctx context.Context, input PaymentInput) (*models.Invoice, error) {
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if !input.Status.IsOutcome() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment status must be Paid or Failed")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invoice, err := lockInvoice(ctx, repo, input.InvoiceID)
		if err != nil {
			return err
		}
		req, err := loadRequest(ctx, repo, invoice.RequestID)
		if err != nil {
			return err
		}
		if invoice.Status != enums.InvoiceStatusFinalized {
			return stateError("payments can only be recorded against finalized invoices", req, invoice)
		}
		if invoice.PaymentStatus.IsSettled() {
			return stateError("invoice is already paid", req, invoice)
		}

		updates := map[string]any{"payment_status": input.Status}
		var paidAt *time.Time
		if input.Status == enums.PaymentStatusPaid {
			now := s.now().UTC()
			paidAt = &now
			updates["payment_date"] = now
		}
		if err := repo.Update(ctx, invoice.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		if _, err := s.history.RecordNoteTx(ctx, tx, history.NoteInput{
			RequestID: req.ID,
			Note:      fmt.Sprintf("Payment recorded: %s", input.Status),
			ActorID:   optionalActor(input.ActorID),
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoicePaymentRecorded,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         outbox.NewActorRef(optionalActor(input.ActorID), enums.UserRoleStaff),
			Data: payloads.InvoicePaymentRecordedEvent{
				InvoiceID:     invoice.ID,
				RequestID:     req.ID,
				PaymentStatus: input.Status,
				PaymentDate:   paidAt,
				RecordedBy:    input.ActorID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment event")
		}
		return nil
	})
	if err != nil {
		return nil, wrapUntyped(err, "record payment")
	}
	return s.GetWithItems(ctx, input.InvoiceID)
}

func (s *service) GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found for request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) GetWithItems(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) StalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]StaleQuote, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListStalePendingQuotes(ctx, quotedBefore.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale quotes")
	}
	return rows, nil
}

func (s *service) ClaimQuoteReminder(ctx context.Context, tx *gorm.DB, quote StaleQuote) (bool, error) {
	rows, err := s.repo.WithTx(tx).MarkQuoteReminded(ctx, quote.InvoiceID, quote.QuotedAt.UTC(), s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quote reminded")
	}
	return rows == 1, nil
}

func (s *service) notifyCustomer(ctx context.Context, tx *gorm.DB, req *models.RepairRequest, invoiceID uuid.UUID, actor *outbox.ActorRef, kind enums.NotificationType, message string) error {
	id := invoiceID
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateRepairRequest,
		AggregateID:   req.ID,
		Actor:         actor,
		Data: payloads.NotificationRequestedEvent{
			RecipientID: req.CustomerID,
			Type:        kind,
			RequestID:   req.ID,
			TicketCode:  req.TicketCode,
			Status:      req.Status,
			InvoiceID:   &id,
			Message:     message,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue customer notification")
	}
	return nil
}

func validateLineItem(input LineItemInput) error {
	if input.InvoiceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	if strings.TrimSpace(input.Item) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "item is required")
	}
	if strings.TrimSpace(input.Unit) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit is required")
	}
	if !input.Qty.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be greater than zero")
	}
	if input.UnitPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}
	if !hasCents(input.Qty) {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty allows at most 2 decimal places").
			WithDetails(map[string]string{"qty": input.Qty.String()})
	}
	if !hasCents(input.UnitPrice) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price allows at most 2 decimal places").
			WithDetails(map[string]string{"unit_price": input.UnitPrice.String()})
	}
	return nil
}

// ensureEditable blocks line item changes once the repair moved on, the
// invoice was finalized, or a quote is awaiting or holding approval.
func ensureEditable(req *models.RepairRequest, invoice *models.Invoice) error {
	if req.Status != enums.RequestStatusInRepair {
		return stateError(fmt.Sprintf("line items can only change while the request is %s", enums.RequestStatusInRepair), req, invoice)
	}
	if invoice.Status == enums.InvoiceStatusFinalized {
		return stateError("invoice is finalized", req, invoice)
	}
	if invoice.QuoteStatusIs(enums.QuoteStatusPending) || invoice.QuoteStatusIs(enums.QuoteStatusApproved) {
		return stateError("line items are locked while a quote is pending or approved", req, invoice)
	}
	return nil
}

func loadRequest(ctx context.Context, repo Repository, requestID uuid.UUID) (*models.RepairRequest, error) {
	req, err := repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repair request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair request")
	}
	return req, nil
}

func lockInvoice(ctx context.Context, repo Repository, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := repo.LockByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice")
	}
	return invoice, nil
}

func stateError(message string, req *models.RepairRequest, invoice *models.Invoice) error {
	details := map[string]any{}
	if req != nil {
		details["request_status"] = req.Status
	}
	if invoice != nil {
		details["invoice_status"] = invoice.Status
		if invoice.QuoteStatus != nil {
			details["quote_status"] = *invoice.QuoteStatus
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(details)
}

func wrapUntyped(err error, message string) error {
	return pkgerrors.FromDB(err, message)
}

func optionalActor(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
