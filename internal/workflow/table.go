package workflow

import (
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

// Action is a named workflow command issued by a desk.
type Action string

const (
	ActionAcceptDropoff        Action = "accept_dropoff"
	ActionStartPickup          Action = "start_pickup"
	ActionStartOnsite          Action = "start_onsite"
	ActionReject               Action = "reject"
	ActionCancel               Action = "cancel"
	ActionPickupReceived       Action = "pickup_received"
	ActionAtWarehouse          Action = "at_warehouse"
	ActionForwardRepair        Action = "forward_repair"
	ActionOnsiteRepair         Action = "onsite_repair"
	ActionOnsiteDone           Action = "onsite_done"
	ActionOnsiteForwardRepair  Action = "onsite_forward_repair"
	ActionOnsiteForwardBilling Action = "onsite_forward_billing"
	ActionComplete             Action = "complete"
	ActionMarkShipped          Action = "mark_shipped"
	ActionMarkDelivered        Action = "mark_delivered"
)

func (a Action) String() string {
	return string(a)
}

// IsKnown reports whether the action appears anywhere in the transition table.
func (a Action) IsKnown() bool {
	_, ok := knownActions[a]
	return ok
}

// Transition is one row of the table: taking Action from From moves the request to Next.
type Transition struct {
	From   enums.RequestStatus `json:"from"`
	Action Action              `json:"action"`
	Next   enums.RequestStatus `json:"next"`
	Note   string              `json:"note"`
	// AssignDesk, when set, hands the request to the acting staff member at that desk.
	AssignDesk enums.Desk `json:"assign_desk,omitempty"`
	Guard      GuardID    `json:"guard,omitempty"`
	// CustomerAllowed marks the few actions a customer may take on their own request.
	CustomerAllowed bool `json:"customer_allowed,omitempty"`
}

// HasAssignment reports whether the transition creates a desk assignment.
func (t Transition) HasAssignment() bool {
	return t.AssignDesk != ""
}

var transitions = []Transition{
	{From: enums.RequestStatusReceived, Action: ActionAcceptDropoff, Next: enums.RequestStatusInRepair, Note: "Device accepted at drop-off and sent to repair", AssignDesk: enums.DeskRepair, Guard: GuardServiceTypeDropoff},
	{From: enums.RequestStatusReceived, Action: ActionStartPickup, Next: enums.RequestStatusPickupInProgress, Note: "Pickup scheduled", Guard: GuardServiceTypePickup},
	{From: enums.RequestStatusReceived, Action: ActionStartOnsite, Next: enums.RequestStatusOnsiteInProgress, Note: "Onsite visit scheduled", Guard: GuardServiceTypeOnsite},
	{From: enums.RequestStatusReceived, Action: ActionReject, Next: enums.RequestStatusRejected, Note: "Request rejected"},
	{From: enums.RequestStatusReceived, Action: ActionCancel, Next: enums.RequestStatusCancelled, Note: "Request cancelled", CustomerAllowed: true},

	{From: enums.RequestStatusPickupInProgress, Action: ActionPickupReceived, Next: enums.RequestStatusDeviceReceived, Note: "Device collected from customer"},
	{From: enums.RequestStatusDeviceReceived, Action: ActionAtWarehouse, Next: enums.RequestStatusAtWarehouse, Note: "Device arrived at warehouse"},
	{From: enums.RequestStatusAtWarehouse, Action: ActionForwardRepair, Next: enums.RequestStatusInRepair, Note: "Forwarded to repair desk", AssignDesk: enums.DeskRepair},

	{From: enums.RequestStatusOnsiteInProgress, Action: ActionOnsiteRepair, Next: enums.RequestStatusOnsiteRepairStarted, Note: "Onsite repair started"},
	{From: enums.RequestStatusOnsiteRepairStarted, Action: ActionOnsiteDone, Next: enums.RequestStatusOnsiteCompleted, Note: "Onsite repair completed"},
	{From: enums.RequestStatusOnsiteCompleted, Action: ActionOnsiteForwardRepair, Next: enums.RequestStatusInRepair, Note: "Onsite job forwarded to workshop repair", AssignDesk: enums.DeskRepair},
	{From: enums.RequestStatusOnsiteCompleted, Action: ActionOnsiteForwardBilling, Next: enums.RequestStatusBilled, Note: "Onsite job forwarded to billing"},

	{From: enums.RequestStatusInRepair, Action: ActionComplete, Next: enums.RequestStatusBilled, Note: "Repair completed and forwarded to billing", Guard: GuardQuoteApproved},

	{From: enums.RequestStatusBilled, Action: ActionMarkShipped, Next: enums.RequestStatusShipped, Note: "Device shipped to customer", AssignDesk: enums.DeskShipping},
	{From: enums.RequestStatusBilled, Action: ActionMarkDelivered, Next: enums.RequestStatusDelivered, Note: "Device delivered to customer"},
	{From: enums.RequestStatusShipped, Action: ActionMarkDelivered, Next: enums.RequestStatusDelivered, Note: "Device delivered to customer"},
}

var (
	table        = buildTable(transitions)
	knownActions = buildKnownActions(transitions)
)

func buildTable(rows []Transition) map[enums.RequestStatus]map[Action]Transition {
	out := make(map[enums.RequestStatus]map[Action]Transition)
	for _, row := range rows {
		if out[row.From] == nil {
			out[row.From] = make(map[Action]Transition)
		}
		out[row.From][row.Action] = row
	}
	return out
}

func buildKnownActions(rows []Transition) map[Action]struct{} {
	out := make(map[Action]struct{}, len(rows))
	for _, row := range rows {
		out[row.Action] = struct{}{}
	}
	return out
}

// Lookup returns the transition for the action from the given status.
func Lookup(from enums.RequestStatus, action Action) (Transition, bool) {
	row, ok := table[from][action]
	return row, ok
}

// ActionsFrom lists the transitions leaving a status in table order.
func ActionsFrom(from enums.RequestStatus) []Transition {
	out := []Transition{}
	for _, row := range transitions {
		if row.From == from {
			out = append(out, row)
		}
	}
	return out
}

// Transitions returns a copy of the full table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}
