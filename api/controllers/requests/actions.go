package requests

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/api/responses"
	"github.com/angelmondragon/repairdesk-backend/api/validators"
	"github.com/angelmondragon/repairdesk-backend/internal/assignments"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	"github.com/angelmondragon/repairdesk-backend/internal/workflow"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
)

type actionRequest struct {
	Note           string `json:"note,omitempty" validate:"omitempty,max=4000"`
	ExpectedStatus string `json:"expected_status,omitempty"`
}

// TransitionResponse is the API shape of a committed workflow action.
type TransitionResponse struct {
	RequestID  uuid.UUID                  `json:"request_id"`
	TicketCode string                     `json:"ticket_code"`
	Action     workflow.Action            `json:"action"`
	Previous   enums.RequestStatus        `json:"previous_status"`
	Status     enums.RequestStatus        `json:"status"`
	History    *history.EntryDTO          `json:"history,omitempty"`
	Assignment *assignments.AssignmentDTO `json:"assignment,omitempty"`
}

// NewTransitionResponse maps a workflow result for the wire.
func NewTransitionResponse(result *workflow.Result) TransitionResponse {
	resp := TransitionResponse{
		RequestID:  result.RequestID,
		TicketCode: result.TicketCode,
		Action:     result.Action,
		Previous:   result.Previous,
		Status:     result.Status,
	}
	if result.HistoryEntry != nil {
		entry := history.NewEntryDTO(*result.HistoryEntry)
		resp.History = &entry
	}
	if result.Assignment != nil {
		assignment := assignments.NewAssignmentDTO(*result.Assignment)
		resp.Assignment = &assignment
	}
	return resp
}

// ApplyAction runs a named workflow action against the request.
func ApplyAction(svc workflow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "workflow service unavailable"))
			return
		}
		actorID, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action := workflow.Action(strings.TrimSpace(chi.URLParam(r, "action")))

		var payload actionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := workflow.ApplyInput{
			RequestID: requestID,
			Action:    action,
			ActorID:   actorID,
			ActorRole: role,
			Note:      validators.SanitizeString(payload.Note, 4000),
		}
		if raw := strings.TrimSpace(payload.ExpectedStatus); raw != "" {
			expected, err := enums.ParseRequestStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expected_status"))
				return
			}
			input.ExpectedStatus = &expected
		}

		result, err := svc.ApplyAction(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewTransitionResponse(result))
	}
}

// AvailableActions lists the outgoing transitions from the request's current status.
func AvailableActions(svc workflow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "workflow service unavailable"))
			return
		}
		_, role, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		options, err := svc.AvailableActions(r.Context(), requestID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, options)
	}
}

// History returns the ledger for a request, oldest first.
func History(svc history.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "history service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.HistoryFor(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history.NewEntryDTOs(entries))
	}
}

// Assignments returns every desk hand-off recorded for a request.
func Assignments(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForRequest(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignments.NewAssignmentDTOs(rows))
	}
}

type assignRequest struct {
	Desk    string `json:"desk" validate:"required,oneof=Registration Repair Billing Shipping"`
	StaffID string `json:"staff_id" validate:"required,uuid"`
}

// Assign hands the request to a staff member at a desk without changing status.
func Assign(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload assignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := uuid.Parse(payload.StaffID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid staff_id"))
			return
		}

		row, err := svc.Assign(r.Context(), nil, assignments.AssignInput{
			RequestID: requestID,
			Desk:      enums.Desk(payload.Desk),
			StaffID:   staffID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, assignments.NewAssignmentDTO(*row))
	}
}

// MyAssignments returns the caller's current work queue, optionally for one desk.
func MyAssignments(svc assignments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		actorID, _, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		desk, err := validators.ParseQueryEnum(r, "desk", enums.ParseDesk)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.MyAssignments(r.Context(), actorID, desk, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignments.NewMyAssignmentsDTO(page))
	}
}
