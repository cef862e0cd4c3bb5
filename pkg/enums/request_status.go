package enums

import "fmt"

// RequestStatus is the workflow state of a repair request.
type RequestStatus string

const (
	RequestStatusReceived            RequestStatus = "Received"
	RequestStatusPickupInProgress    RequestStatus = "Pickup In Progress"
	RequestStatusDeviceReceived      RequestStatus = "Device Received"
	RequestStatusAtWarehouse         RequestStatus = "At Warehouse"
	RequestStatusOnsiteInProgress    RequestStatus = "Onsite In Progress"
	RequestStatusOnsiteRepairStarted RequestStatus = "Onsite Repair Started"
	RequestStatusOnsiteCompleted     RequestStatus = "Onsite Completed"
	RequestStatusInRepair            RequestStatus = "In Repair"
	RequestStatusBilled              RequestStatus = "Billed"
	RequestStatusShipped             RequestStatus = "Shipped"
	RequestStatusDelivered           RequestStatus = "Delivered"
	RequestStatusRejected            RequestStatus = "Rejected"
	RequestStatusCancelled           RequestStatus = "Cancelled"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusReceived,
	RequestStatusPickupInProgress,
	RequestStatusDeviceReceived,
	RequestStatusAtWarehouse,
	RequestStatusOnsiteInProgress,
	RequestStatusOnsiteRepairStarted,
	RequestStatusOnsiteCompleted,
	RequestStatusInRepair,
	RequestStatusBilled,
	RequestStatusShipped,
	RequestStatusDelivered,
	RequestStatusRejected,
	RequestStatusCancelled,
}

// RequestStatuses returns every workflow state in lifecycle order.
func RequestStatuses() []RequestStatus {
	out := make([]RequestStatus, len(validRequestStatuses))
	copy(out, validRequestStatuses)
	return out
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RequestStatus.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave the state.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusDelivered, RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
