package customer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	internalinvoices "github.com/angelmondragon/repairdesk-backend/internal/invoices"
	internalrequests "github.com/angelmondragon/repairdesk-backend/internal/requests"
	"github.com/angelmondragon/repairdesk-backend/internal/workflow"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

type stubRequests struct {
	internalrequests.Service
	owner  uuid.UUID
	cancel func(ctx context.Context, requestID, customerID uuid.UUID, reason string) (*workflow.Result, error)
	create func(ctx context.Context, input internalrequests.CreateInput) (*internalrequests.RequestDTO, error)
}

func (s *stubRequests) GetForCustomer(ctx context.Context, requestID, customerID uuid.UUID) (*internalrequests.RequestDTO, error) {
	if customerID != s.owner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another customer")
	}
	return &internalrequests.RequestDTO{ID: requestID, CustomerID: s.owner, Status: enums.RequestStatusReceived}, nil
}

func (s *stubRequests) CustomerCancel(ctx context.Context, requestID, customerID uuid.UUID, reason string) (*workflow.Result, error) {
	return s.cancel(ctx, requestID, customerID, reason)
}

func (s *stubRequests) Create(ctx context.Context, input internalrequests.CreateInput) (*internalrequests.RequestDTO, error) {
	return s.create(ctx, input)
}

func (s *stubRequests) CustomerRequests(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*internalrequests.RequestPage, error) {
	return &internalrequests.RequestPage{Items: []internalrequests.RequestDTO{}}, nil
}

type stubHistory struct {
	history.Service
}

func (stubHistory) HistoryFor(ctx context.Context, requestID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	return []models.StatusHistoryEntry{{ID: 1, RequestID: requestID, Status: enums.RequestStatusReceived}}, nil
}

type stubInvoices struct {
	internalinvoices.Service
	invoice *models.Invoice
	reject  func(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error)
}

func (s *stubInvoices) GetForRequest(ctx context.Context, requestID uuid.UUID) (*models.Invoice, error) {
	return s.invoice, nil
}

func (s *stubInvoices) CustomerRejectQuote(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error) {
	return s.reject(ctx, invoiceID, customerID, reason)
}

func serve(method, pattern, target, body string, h http.HandlerFunc, actor uuid.UUID) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), actor, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestGetForbiddenForOtherCustomers(t *testing.T) {
	svcs := Services{Requests: &stubRequests{owner: uuid.New()}, History: stubHistory{}, Invoices: &stubInvoices{}}
	resp := serve(http.MethodGet, "/requests/{requestId}", "/requests/"+uuid.NewString(), "", Get(svcs, nil), uuid.New())
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestHistoryForOwner(t *testing.T) {
	owner := uuid.New()
	svcs := Services{Requests: &stubRequests{owner: owner}, History: stubHistory{}, Invoices: &stubInvoices{}}
	resp := serve(http.MethodGet, "/requests/{requestId}/history", "/requests/"+uuid.NewString()+"/history", "", History(svcs, nil), owner)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"Received"`)
}

func TestCreateForcesCallerAsCustomer(t *testing.T) {
	owner := uuid.New()
	var captured internalrequests.CreateInput
	reqs := &stubRequests{owner: owner, create: func(ctx context.Context, input internalrequests.CreateInput) (*internalrequests.RequestDTO, error) {
		captured = input
		return &internalrequests.RequestDTO{ID: uuid.New(), CustomerID: owner}, nil
	}}
	svcs := Services{Requests: reqs, History: stubHistory{}, Invoices: &stubInvoices{}}

	body := `{"device_type":"Phone","brand":"Apple","model":"iPhone 13","issue_description":"Cracked screen","service_type":"dropoff"}`
	resp := serve(http.MethodPost, "/requests", "/requests", body, Create(svcs, nil), owner)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, owner, captured.ActorID)
	assert.Equal(t, enums.UserRoleCustomer, captured.ActorRole)
	assert.Equal(t, uuid.Nil, captured.CustomerID)
}

func TestCancelPassesReason(t *testing.T) {
	owner := uuid.New()
	requestID := uuid.New()
	var gotReason string
	reqs := &stubRequests{owner: owner, cancel: func(ctx context.Context, id, customerID uuid.UUID, reason string) (*workflow.Result, error) {
		gotReason = reason
		return &workflow.Result{RequestID: id, Action: workflow.ActionCancel, Previous: enums.RequestStatusReceived, Status: enums.RequestStatusCancelled}, nil
	}}
	svcs := Services{Requests: reqs, History: stubHistory{}, Invoices: &stubInvoices{}}

	resp := serve(http.MethodPost, "/requests/{requestId}/cancel", "/requests/"+requestID.String()+"/cancel", `{"reason":"fixed it myself"}`, Cancel(svcs, nil), owner)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "fixed it myself", gotReason)
	assert.Contains(t, resp.Body.String(), `"status":"Cancelled"`)
}

func TestRejectQuoteUsesRequestInvoice(t *testing.T) {
	owner := uuid.New()
	requestID := uuid.New()
	invoice := &models.Invoice{ID: uuid.New(), RequestID: requestID, Status: enums.InvoiceStatusDraft, CreatedAt: time.Now()}
	var gotInvoice, gotCustomer uuid.UUID
	invs := &stubInvoices{invoice: invoice, reject: func(ctx context.Context, invoiceID, customerID uuid.UUID, reason string) (*models.Invoice, error) {
		gotInvoice = invoiceID
		gotCustomer = customerID
		rejected := enums.QuoteStatusRejected
		invoice.QuoteStatus = &rejected
		return invoice, nil
	}}
	svcs := Services{Requests: &stubRequests{owner: owner}, History: stubHistory{}, Invoices: invs}

	target := "/requests/" + requestID.String() + "/quote/reject"
	resp := serve(http.MethodPost, "/requests/{requestId}/quote/reject", target, "", RejectQuote(svcs, nil), owner)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, invoice.ID, gotInvoice)
	assert.Equal(t, owner, gotCustomer)
	assert.Contains(t, resp.Body.String(), `"quote_status":"Rejected"`)
}

func TestServicesMustBeWired(t *testing.T) {
	resp := serve(http.MethodGet, "/requests", "/requests", "", List(Services{}, nil), uuid.New())
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
