package workflow

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/repairdesk-backend/pkg/db/models"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
)

func TestTableRowsAreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, row := range Transitions() {
		if !row.From.IsValid() || !row.Next.IsValid() {
			t.Fatalf("row %s has invalid status", row.Action)
		}
		if row.From.IsTerminal() {
			t.Fatalf("terminal status %s must not have outgoing transitions", row.From)
		}
		if row.Note == "" {
			t.Fatalf("row %s/%s is missing a history note", row.From, row.Action)
		}
		if row.HasAssignment() && !row.AssignDesk.IsValid() {
			t.Fatalf("row %s assigns unknown desk %s", row.Action, row.AssignDesk)
		}
		if row.Guard != "" {
			if _, ok := guards[row.Guard]; !ok {
				t.Fatalf("row %s references unregistered guard %s", row.Action, row.Guard)
			}
		}
		key := string(row.From) + "|" + string(row.Action)
		if seen[key] {
			t.Fatalf("duplicate row %s", key)
		}
		seen[key] = true
	}
}

func TestTerminalStatusesHaveNoActions(t *testing.T) {
	for _, status := range enums.RequestStatuses() {
		actions := ActionsFrom(status)
		if status.IsTerminal() && len(actions) != 0 {
			t.Fatalf("terminal status %s exposes %d actions", status, len(actions))
		}
		if !status.IsTerminal() && len(actions) == 0 {
			t.Fatalf("non-terminal status %s is a dead end", status)
		}
	}
}

func TestLookupMatchesDocumentedTransitions(t *testing.T) {
	cases := []struct {
		from   enums.RequestStatus
		action Action
		next   enums.RequestStatus
		desk   enums.Desk
		guard  GuardID
	}{
		{enums.RequestStatusReceived, ActionAcceptDropoff, enums.RequestStatusInRepair, enums.DeskRepair, GuardServiceTypeDropoff},
		{enums.RequestStatusReceived, ActionStartPickup, enums.RequestStatusPickupInProgress, "", GuardServiceTypePickup},
		{enums.RequestStatusReceived, ActionStartOnsite, enums.RequestStatusOnsiteInProgress, "", GuardServiceTypeOnsite},
		{enums.RequestStatusReceived, ActionReject, enums.RequestStatusRejected, "", ""},
		{enums.RequestStatusPickupInProgress, ActionPickupReceived, enums.RequestStatusDeviceReceived, "", ""},
		{enums.RequestStatusDeviceReceived, ActionAtWarehouse, enums.RequestStatusAtWarehouse, "", ""},
		{enums.RequestStatusAtWarehouse, ActionForwardRepair, enums.RequestStatusInRepair, enums.DeskRepair, ""},
		{enums.RequestStatusOnsiteInProgress, ActionOnsiteRepair, enums.RequestStatusOnsiteRepairStarted, "", ""},
		{enums.RequestStatusOnsiteRepairStarted, ActionOnsiteDone, enums.RequestStatusOnsiteCompleted, "", ""},
		{enums.RequestStatusOnsiteCompleted, ActionOnsiteForwardRepair, enums.RequestStatusInRepair, enums.DeskRepair, ""},
		{enums.RequestStatusOnsiteCompleted, ActionOnsiteForwardBilling, enums.RequestStatusBilled, "", ""},
		{enums.RequestStatusInRepair, ActionComplete, enums.RequestStatusBilled, "", GuardQuoteApproved},
		{enums.RequestStatusBilled, ActionMarkDelivered, enums.RequestStatusDelivered, "", ""},
		{enums.RequestStatusBilled, ActionMarkShipped, enums.RequestStatusShipped, enums.DeskShipping, ""},
		{enums.RequestStatusShipped, ActionMarkDelivered, enums.RequestStatusDelivered, "", ""},
	}
	for _, tc := range cases {
		row, ok := Lookup(tc.from, tc.action)
		if !ok {
			t.Fatalf("missing transition %s --%s-->", tc.from, tc.action)
		}
		if row.Next != tc.next || row.AssignDesk != tc.desk || row.Guard != tc.guard {
			t.Fatalf("unexpected row for %s/%s: %+v", tc.from, tc.action, row)
		}
	}
	if _, ok := Lookup(enums.RequestStatusInRepair, ActionAcceptDropoff); ok {
		t.Fatal("accept_dropoff must not be legal from In Repair")
	}
}

func TestOnlyCancelIsCustomerAllowed(t *testing.T) {
	for _, row := range Transitions() {
		if row.CustomerAllowed != (row.Action == ActionCancel) {
			t.Fatalf("unexpected customer flag on %s", row.Action)
		}
	}
}

func TestEvaluateGuard(t *testing.T) {
	dropoff := &models.RepairRequest{ID: uuid.New(), ServiceType: enums.ServiceTypeDropoff}

	if ok, _, err := EvaluateGuard("", GuardInput{}); !ok || err != nil {
		t.Fatalf("empty guard should pass")
	}
	if ok, _, _ := EvaluateGuard(GuardServiceTypeDropoff, GuardInput{Request: dropoff}); !ok {
		t.Fatal("dropoff guard should pass for dropoff request")
	}
	if ok, reason, _ := EvaluateGuard(GuardServiceTypePickup, GuardInput{Request: dropoff}); ok || reason == "" {
		t.Fatal("pickup guard should fail with a reason for dropoff request")
	}
	if ok, _, _ := EvaluateGuard(GuardQuoteApproved, GuardInput{Request: dropoff}); ok {
		t.Fatal("quote guard must fail without an invoice")
	}
	pending := enums.QuoteStatusPending
	if ok, _, _ := EvaluateGuard(GuardQuoteApproved, GuardInput{Request: dropoff, Invoice: &models.Invoice{QuoteStatus: &pending}}); ok {
		t.Fatal("quote guard must fail for pending quote")
	}
	approved := enums.QuoteStatusApproved
	if ok, _, _ := EvaluateGuard(GuardQuoteApproved, GuardInput{Request: dropoff, Invoice: &models.Invoice{QuoteStatus: &approved}}); !ok {
		t.Fatal("quote guard must pass for approved quote")
	}
	if _, _, err := EvaluateGuard("vip_only", GuardInput{}); err == nil {
		t.Fatal("unknown guard should error")
	}
	if !GuardNeedsInvoice(GuardQuoteApproved) || GuardNeedsInvoice(GuardServiceTypeOnsite) {
		t.Fatal("unexpected invoice requirement flags")
	}
}

func TestActionIsKnown(t *testing.T) {
	if !ActionComplete.IsKnown() || Action("teleport").IsKnown() {
		t.Fatal("unexpected IsKnown result")
	}
}
