package invoices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	internalinvoices "github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
)

type stubInvoiceService struct {
	addItem       func(ctx context.Context, input internalinvoices.LineItemInput) (*models.Invoice, error)
	getForRequest func(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error)
	approve       func(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error)
	reject        func(ctx context.Context, invoiceID, actorID uuid.UUID, reason string) (*models.Invoice, error)
	payment       func(ctx context.Context, input internalinvoices.PaymentInput) (*models.Invoice, error)
}

func (s *stubInvoiceService) EnsureInvoice(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) AddLineItem(ctx context.Context, input internalinvoices.LineItemInput) (*models.Invoice, error) {
	return s.addItem(ctx, input)
}

func (s *stubInvoiceService) GenerateQuote(ctx context.Context, requestID, actorID uuid.UUID) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) ApproveQuote(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error) {
	return s.approve(ctx, invoiceID, actorID)
}

func (s *stubInvoiceService) RejectQuote(ctx context.Context, invoiceID, actorID uuid.UUID, reason string) (*models.Invoice, error) {
	return s.reject(ctx, invoiceID, actorID, reason)
}

func (s *stubInvoiceService) CustomerApproveQuote(ctx context.Context, invoiceID, customerID uuid.UUID) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) CustomerRejectQuote(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) Finalize(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) RecordPayment(ctx context.Context, input internalinvoices.PaymentInput) (*models.Invoice, error) {
	return s.payment(ctx, input)
}

func (s *stubInvoiceService) GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	return s.getForRequest(ctx, requestID)
}

func (s *stubInvoiceService) GetWithItems(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) StalePendingQuotes(ctx context.Context, quotedBefore time.Time, limit int) ([]internalinvoices.StaleQuote, error) {
	panic("not implemented")
}

func (s *stubInvoiceService) ClaimQuoteReminder(ctx context.Context, tx *gorm.DB, quote internalinvoices.StaleQuote) (bool, error) {
	panic("not implemented")
}

func serve(method, pattern, target, body string, h http.HandlerFunc, actor uuid.UUID) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), actor, enums.UserRoleStaff))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func draftInvoice(requestID uuid.UUID) *models.Invoice {
	return &models.Invoice{
		ID:            uuid.New(),
		RequestID:     requestID,
		Status:        enums.InvoiceStatusDraft,
		Subtotal:      decimal.RequireFromString("99.98"),
		TaxRate:       decimal.RequireFromString("0.13"),
		TaxAmount:     decimal.RequireFromString("13.00"),
		Total:         decimal.RequireFromString("112.98"),
		PaymentStatus: enums.PaymentStatusUnpaid,
		Items: []models.InvoiceItem{{
			ID:        uuid.New(),
			Item:      "Battery",
			Unit:      "pcs",
			Qty:       decimal.NewFromInt(2),
			UnitPrice: decimal.RequireFromString("49.99"),
			Subtotal:  decimal.RequireFromString("99.98"),
		}},
	}
}

func TestAddLineItemParsesMoney(t *testing.T) {
	invoiceID := uuid.New()
	staffID := uuid.New()
	var captured internalinvoices.LineItemInput
	svc := &stubInvoiceService{addItem: func(ctx context.Context, input internalinvoices.LineItemInput) (*models.Invoice, error) {
		captured = input
		return draftInvoice(uuid.New()), nil
	}}

	body := `{"item":"Battery","unit":"pcs","qty":"2","unit_price":"49.99"}`
	resp := serve(http.MethodPost, "/invoices/{invoiceId}/items", "/invoices/"+invoiceID.String()+"/items", body, AddLineItem(svc, nil), staffID)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, invoiceID, captured.InvoiceID)
	assert.Equal(t, staffID, captured.ActorID)
	assert.True(t, captured.Qty.Equal(decimal.NewFromInt(2)))
	assert.True(t, captured.UnitPrice.Equal(decimal.RequireFromString("49.99")))

	var envelope struct {
		Data internalinvoices.InvoiceDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "112.98", envelope.Data.Total)
	assert.Equal(t, "13.00", envelope.Data.TaxAmount)
	assert.Equal(t, "0.1300", envelope.Data.TaxRate)
	require.Len(t, envelope.Data.Items, 1)
	assert.Equal(t, "2.00", envelope.Data.Items[0].Qty)
}

func TestAddLineItemRequiresDescription(t *testing.T) {
	body := `{"unit":"pcs","qty":1,"unit_price":10}`
	resp := serve(http.MethodPost, "/invoices/{invoiceId}/items", "/invoices/"+uuid.NewString()+"/items", body, AddLineItem(&stubInvoiceService{}, nil), uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestApproveQuoteResolvesInvoiceFromRequest(t *testing.T) {
	requestID := uuid.New()
	invoice := draftInvoice(requestID)
	var approvedID uuid.UUID
	svc := &stubInvoiceService{
		getForRequest: func(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
			assert.Equal(t, requestID, id)
			return invoice, nil
		},
		approve: func(ctx context.Context, invoiceID, actorID uuid.UUID) (*models.Invoice, error) {
			approvedID = invoiceID
			approved := enums.QuoteStatusApproved
			invoice.QuoteStatus = &approved
			return invoice, nil
		},
	}

	target := "/requests/" + requestID.String() + "/invoice/quote/approve"
	resp := serve(http.MethodPost, "/requests/{requestId}/invoice/quote/approve", target, "", ApproveQuote(svc, nil), uuid.New())

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, invoice.ID, approvedID)
}

func TestRejectQuotePassesReason(t *testing.T) {
	requestID := uuid.New()
	invoice := draftInvoice(requestID)
	var reason string
	svc := &stubInvoiceService{
		getForRequest: func(ctx context.Context, id uuid.UUID) (*models.Invoice, error) { return invoice, nil },
		reject: func(ctx context.Context, invoiceID, actorID uuid.UUID, r string) (*models.Invoice, error) {
			reason = r
			return invoice, nil
		},
	}

	target := "/requests/" + requestID.String() + "/invoice/quote/reject"
	resp := serve(http.MethodPost, "/requests/{requestId}/invoice/quote/reject", target, `{"reason":"too expensive"}`, RejectQuote(svc, nil), uuid.New())

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "too expensive", reason)
}

func TestApproveQuoteWithoutInvoice(t *testing.T) {
	svc := &stubInvoiceService{getForRequest: func(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found for request")
	}}
	target := "/requests/" + uuid.NewString() + "/invoice/quote/approve"
	resp := serve(http.MethodPost, "/requests/{requestId}/invoice/quote/approve", target, "", ApproveQuote(svc, nil), uuid.New())
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRecordPaymentAcceptsOnlySettlementOutcomes(t *testing.T) {
	var captured internalinvoices.PaymentInput
	svc := &stubInvoiceService{payment: func(ctx context.Context, input internalinvoices.PaymentInput) (*models.Invoice, error) {
		captured = input
		return draftInvoice(uuid.New()), nil
	}}
	invoiceID := uuid.NewString()

	resp := serve(http.MethodPost, "/invoices/{invoiceId}/payment", "/invoices/"+invoiceID+"/payment", `{"status":"Unpaid"}`, RecordPayment(svc, nil), uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = serve(http.MethodPost, "/invoices/{invoiceId}/payment", "/invoices/"+invoiceID+"/payment", `{"status":"Paid"}`, RecordPayment(svc, nil), uuid.New())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.PaymentStatusPaid, captured.Status)
}
