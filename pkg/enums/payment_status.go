package enums

import "fmt"

// PaymentStatus tracks settlement of a finalized invoice. Unpaid and Failed
// are open; Paid is final.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "Unpaid"
	PaymentStatusPaid   PaymentStatus = "Paid"
	PaymentStatusFailed PaymentStatus = "Failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPaid,
	PaymentStatusFailed,
}

func (p PaymentStatus) String() string {
	return string(p)
}

// IsOutcome reports whether the billing desk may record p. Unpaid is only
// the initial state.
func (p PaymentStatus) IsOutcome() bool {
	return p == PaymentStatusPaid || p == PaymentStatusFailed
}

// IsSettled reports whether no further payment may be recorded.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusPaid
}

func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
