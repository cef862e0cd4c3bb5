package invoices

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/api/responses"
	"github.com/angelmondragon/repairdesk-backend/api/validators"
	internalinvoices "github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

type requestScopedFn func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error)

// requestScoped wraps handlers addressed by /requests/{requestId}/invoice.
func requestScoped(svc internalinvoices.Service, logg *logger.Logger, status int, fn requestScopedFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		actorID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := fn(r, svc, requestID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, internalinvoices.NewInvoiceDTO(invoice))
	}
}

// Ensure returns the request's invoice, opening a draft when none exists.
func Ensure(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error) {
		return svc.EnsureInvoice(r.Context(), requestID, actorID)
	})
}

// GetForRequest returns the request's invoice with its line items.
func GetForRequest(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, _ uuid.UUID) (*models.Invoice, error) {
		return svc.GetForRequest(r.Context(), requestID)
	})
}

// GenerateQuote freezes the draft into a quote awaiting customer approval.
func GenerateQuote(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error) {
		return svc.GenerateQuote(r.Context(), requestID, actorID)
	})
}

// ApproveQuote records a staff-entered approval, e.g. taken over the phone.
func ApproveQuote(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error) {
		invoice, err := svc.GetForRequest(r.Context(), requestID)
		if err != nil {
			return nil, err
		}
		return svc.ApproveQuote(r.Context(), invoice.ID, actorID)
	})
}

// DecisionRequest carries the optional reason for a quote rejection.
type DecisionRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=2000"`
}

// RejectQuote records a staff-entered rejection.
func RejectQuote(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error) {
		var payload DecisionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			return nil, err
		}
		invoice, err := svc.GetForRequest(r.Context(), requestID)
		if err != nil {
			return nil, err
		}
		return svc.RejectQuote(r.Context(), invoice.ID, actorID, validators.SanitizeString(payload.Reason, 2000))
	})
}

// Finalize locks the invoice of a billed request.
func Finalize(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return requestScoped(svc, logg, http.StatusOK, func(r *http.Request, svc internalinvoices.Service, requestID, actorID uuid.UUID) (*models.Invoice, error) {
		invoice, err := svc.GetForRequest(r.Context(), requestID)
		if err != nil {
			return nil, err
		}
		return svc.Finalize(r.Context(), invoice.ID, actorID)
	})
}

// Get returns an invoice by id.
func Get(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoice, err := svc.GetWithItems(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.NewInvoiceDTO(invoice))
	}
}

type lineItemRequest struct {
	Item      string          `json:"item" validate:"required,max=255"`
	Unit      string          `json:"unit" validate:"required,max=32"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// AddLineItem appends a charge to a draft invoice and returns the recomputed totals.
func AddLineItem(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		actorID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload lineItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.AddLineItem(r.Context(), internalinvoices.LineItemInput{
			InvoiceID: invoiceID,
			Item:      payload.Item,
			Unit:      payload.Unit,
			Qty:       payload.Qty,
			UnitPrice: payload.UnitPrice,
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalinvoices.NewInvoiceDTO(invoice))
	}
}

type paymentRequest struct {
	Status string `json:"status" validate:"required,oneof=Paid Failed"`
}

// RecordPayment stores the settlement outcome reported by the billing desk.
func RecordPayment(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice service unavailable"))
			return
		}
		actorID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload paymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.RecordPayment(r.Context(), internalinvoices.PaymentInput{
			InvoiceID: invoiceID,
			Status:    enums.PaymentStatus(payload.Status),
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.NewInvoiceDTO(invoice))
	}
}
