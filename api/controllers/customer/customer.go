package customer

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/api/controllers/invoices"
	"github.com/angelmondragon/repairdesk-backend/api/controllers/requests"
	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/api/responses"
	"github.com/angelmondragon/repairdesk-backend/api/validators"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	internalinvoices "github.com/angelmondragon/repairdesk-backend/internal/invoices"
	internalrequests "github.com/angelmondragon/repairdesk-backend/internal/requests"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

// Services groups what the customer surface reads and writes.
type Services struct {
	Requests internalrequests.Service
	History  history.Service
	Invoices internalinvoices.Service
}

func (s Services) ready() error {
	if s.Requests == nil || s.History == nil || s.Invoices == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "customer services unavailable")
	}
	return nil
}

// ownedRequest resolves the caller and verifies they own the addressed request.
func ownedRequest(r *http.Request, svcs Services) (uuid.UUID, *internalrequests.RequestDTO, error) {
	if err := svcs.ready(); err != nil {
		return uuid.Nil, nil, err
	}
	customerID, _, err := middleware.RequireActor(r.Context())
	if err != nil {
		return uuid.Nil, nil, err
	}
	requestID, err := validators.ParseUUIDParam(r, "requestId")
	if err != nil {
		return uuid.Nil, nil, err
	}
	dto, err := svcs.Requests.GetForCustomer(r.Context(), requestID, customerID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return customerID, dto, nil
}

// List returns the caller's own requests.
func List(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svcs.ready(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := requests.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svcs.Requests.CustomerRequests(r.Context(), customerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Create opens a request for the caller. The customer id is always the caller's.
func Create(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return requests.Create(svcs.Requests, logg)
}

// Get returns one of the caller's requests.
func Get(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// History returns the status timeline of one of the caller's requests.
func History(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svcs.History.HistoryFor(r.Context(), dto.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history.NewEntryDTOs(entries))
	}
}

// Invoice returns the quote or invoice attached to one of the caller's requests.
func Invoice(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svcs.Invoices.GetForRequest(r.Context(), dto.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.NewInvoiceDTO(invoice))
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=2000"`
}

// Cancel withdraws a request that has not been picked up yet.
func Cancel(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svcs.Requests.CustomerCancel(r.Context(), dto.ID, customerID, validators.SanitizeString(payload.Reason, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requests.NewTransitionResponse(result))
	}
}

// ApproveQuote accepts the pending quote on one of the caller's requests.
func ApproveQuote(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svcs.Invoices.GetForRequest(r.Context(), dto.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svcs.Invoices.CustomerApproveQuote(r.Context(), invoice.ID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.NewInvoiceDTO(updated))
	}
}

// RejectQuote declines the pending quote with an optional reason.
func RejectQuote(svcs Services, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, dto, err := ownedRequest(r, svcs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload invoices.DecisionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svcs.Invoices.GetForRequest(r.Context(), dto.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svcs.Invoices.CustomerRejectQuote(r.Context(), invoice.ID, customerID, validators.SanitizeString(payload.Reason, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.NewInvoiceDTO(updated))
	}
}
