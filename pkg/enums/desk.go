package enums

import "fmt"

// Desk is a staff work queue that owns a ticket for a stage of its lifecycle.
type Desk string

const (
	DeskRegistration Desk = "Registration"
	DeskRepair       Desk = "Repair"
	DeskBilling      Desk = "Billing"
	DeskShipping     Desk = "Shipping"
)

var validDesks = []Desk{
	DeskRegistration,
	DeskRepair,
	DeskBilling,
	DeskShipping,
}

// String implements fmt.Stringer.
func (d Desk) String() string {
	return string(d)
}

// IsValid reports whether the value is a known Desk.
func (d Desk) IsValid() bool {
	for _, candidate := range validDesks {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDesk converts raw input into a Desk.
func ParseDesk(value string) (Desk, error) {
	for _, candidate := range validDesks {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid desk %q", value)
}
