package requests

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/api/responses"
	"github.com/angelmondragon/repairdesk-backend/api/validators"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	internalrequests "github.com/angelmondragon/repairdesk-backend/internal/requests"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	"github.com/angelmondragon/repairdesk-backend/pkg/pagination"
)

// CreateRequest is the intake form submitted by the registration desk or a customer.
type CreateRequest struct {
	CustomerID       string  `json:"customer_id,omitempty" validate:"omitempty,uuid"`
	DeviceType       string  `json:"device_type" validate:"required,max=64"`
	Brand            string  `json:"brand" validate:"required,max=128"`
	Model            string  `json:"model" validate:"required,max=128"`
	SerialNo         *string `json:"serial_no,omitempty" validate:"omitempty,max=128"`
	IssueDescription string  `json:"issue_description" validate:"required,max=4000"`
	ServiceType      string  `json:"service_type" validate:"required,oneof=dropoff pickup onsite"`
	ServiceAddress   *string `json:"service_address,omitempty" validate:"omitempty,max=512"`
	PreferredContact *string `json:"preferred_contact,omitempty" validate:"omitempty,max=128"`
	Accessories      *string `json:"accessories,omitempty" validate:"omitempty,max=512"`
	WarrantyStatus   *string `json:"warranty_status,omitempty" validate:"omitempty,max=64"`
	AttachmentPath   *string `json:"attachment_path,omitempty" validate:"omitempty,max=1024"`
	Priority         string  `json:"priority,omitempty" validate:"omitempty,oneof=normal high"`
}

// ToInput binds the payload to the acting user.
func (p CreateRequest) ToInput(actorID uuid.UUID, role enums.UserRole) (internalrequests.CreateInput, error) {
	input := internalrequests.CreateInput{
		ActorID:          actorID,
		ActorRole:        role,
		DeviceType:       p.DeviceType,
		Brand:            p.Brand,
		Model:            p.Model,
		SerialNo:         p.SerialNo,
		IssueDescription: p.IssueDescription,
		ServiceType:      enums.ServiceType(p.ServiceType),
		ServiceAddress:   p.ServiceAddress,
		PreferredContact: p.PreferredContact,
		Accessories:      p.Accessories,
		WarrantyStatus:   p.WarrantyStatus,
		AttachmentPath:   p.AttachmentPath,
		Priority:         enums.Priority(p.Priority),
	}
	if p.CustomerID != "" {
		id, err := uuid.Parse(p.CustomerID)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer_id")
		}
		input.CustomerID = id
	}
	return input, nil
}

// Create opens a new ticket on behalf of a customer.
func Create(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload CreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.ToInput(actorID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// List returns a cursor page of requests filtered by status, customer, service type or priority.
func List(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}

		params, err := PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Get returns a single request by id.
func Get(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// GetByTicketCode looks a request up by the code printed on the intake slip.
func GetByTicketCode(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		code := strings.TrimSpace(chi.URLParam(r, "ticketCode"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "ticket code is required"))
			return
		}
		dto, err := svc.GetByTicketCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

type deviceDetailsRequest struct {
	Brand    string  `json:"brand" validate:"required,max=128"`
	Model    string  `json:"model" validate:"required,max=128"`
	SerialNo *string `json:"serial_no,omitempty" validate:"omitempty,max=128"`
}

// UpdateDeviceDetails corrects brand, model and serial number.
func UpdateDeviceDetails(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
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

		var payload deviceDetailsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateDeviceDetails(r.Context(), internalrequests.DeviceDetailsInput{
			RequestID: requestID,
			Brand:     payload.Brand,
			Model:     payload.Model,
			SerialNo:  payload.SerialNo,
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

type noteRequest struct {
	Note string `json:"note" validate:"required,max=4000"`
}

// AddNote records a technician annotation on an onsite request.
func AddNote(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
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

		var payload noteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.AddOnsiteNote(r.Context(), internalrequests.NoteInput{
			RequestID: requestID,
			Note:      validators.SanitizeString(payload.Note, 4000),
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, history.NewEntryDTO(*entry))
	}
}

// Dashboard returns request counts for the admin overview.
func Dashboard(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "request service unavailable"))
			return
		}
		dashboard, err := svc.Dashboard(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboard)
	}
}

// PageParams reads limit and cursor query parameters.
func PageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func buildListFilters(r *http.Request) (internalrequests.ListFilters, error) {
	var (
		filters internalrequests.ListFilters
		err     error
	)
	if filters.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseRequestStatus); err != nil {
		return filters, err
	}
	if filters.ServiceType, err = validators.ParseQueryEnum(r, "service_type", enums.ParseServiceType); err != nil {
		return filters, err
	}
	if filters.Priority, err = validators.ParseQueryEnum(r, "priority", enums.ParsePriority); err != nil {
		return filters, err
	}
	if filters.CustomerID, err = validators.ParseOptionalUUIDQuery(r, "customer_id"); err != nil {
		return filters, err
	}
	if filters.Unassigned, err = validators.ParseQueryBool(r, "unassigned"); err != nil {
		return filters, err
	}
	if filters.OpenOnly, err = validators.ParseQueryBool(r, "open"); err != nil {
		return filters, err
	}
	return filters, nil
}
