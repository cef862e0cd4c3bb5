package workflow

import (
	"fmt"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// GuardID names a precondition registered in the guard table.
type GuardID string

const (
	GuardServiceTypeDropoff GuardID = "service_type_dropoff"
	GuardServiceTypePickup  GuardID = "service_type_pickup"
	GuardServiceTypeOnsite  GuardID = "service_type_onsite"
	GuardQuoteApproved      GuardID = "quote_approved"
)

// GuardInput is everything a guard may inspect. Invoice is nil when the request has none
// or when the guard does not need it.
type GuardInput struct {
	Request *models.RepairRequest
	Invoice *models.Invoice
}

type guard struct {
	check        func(GuardInput) bool
	needsInvoice bool
	reason       string
}

var guards = map[GuardID]guard{
	GuardServiceTypeDropoff: {
		check:  serviceTypeIs(enums.ServiceTypeDropoff),
		reason: "request is not a drop-off",
	},
	GuardServiceTypePickup: {
		check:  serviceTypeIs(enums.ServiceTypePickup),
		reason: "request is not a pickup",
	},
	GuardServiceTypeOnsite: {
		check:  serviceTypeIs(enums.ServiceTypeOnsite),
		reason: "request is not an onsite job",
	},
	GuardQuoteApproved: {
		check: func(in GuardInput) bool {
			return in.Invoice.QuoteStatusIs(enums.QuoteStatusApproved)
		},
		needsInvoice: true,
		reason:       "quote has not been approved",
	},
}

func serviceTypeIs(want enums.ServiceType) func(GuardInput) bool {
	return func(in GuardInput) bool {
		return in.Request != nil && in.Request.ServiceType == want
	}
}

// GuardNeedsInvoice reports whether the guard reads the request's invoice.
func GuardNeedsInvoice(id GuardID) bool {
	return guards[id].needsInvoice
}

// EvaluateGuard runs the named guard. An empty id always passes. The returned
// string explains a failed check.
func EvaluateGuard(id GuardID, in GuardInput) (bool, string, error) {
	if id == "" {
		return true, "", nil
	}
	g, ok := guards[id]
	if !ok {
		return false, "", fmt.Errorf("guard %q not registered", id)
	}
	if g.check(in) {
		return true, "", nil
	}
	return false, g.reason, nil
}
