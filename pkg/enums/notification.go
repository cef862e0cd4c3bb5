package enums

import "fmt"

// NotificationType tags customer-facing messages relayed to the notification topic.
type NotificationType string

const (
	NotificationTypeRequestReceived NotificationType = "request_received"
	NotificationTypeStatusUpdate    NotificationType = "status_update"
	NotificationTypeQuoteReady      NotificationType = "quote_ready"
	NotificationTypeQuoteDecision   NotificationType = "quote_decision"
	NotificationTypeQuoteReminder   NotificationType = "quote_reminder"
	NotificationTypeInvoiceIssued   NotificationType = "invoice_issued"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeRequestReceived,
	NotificationTypeStatusUpdate,
	NotificationTypeQuoteReady,
	NotificationTypeQuoteDecision,
	NotificationTypeQuoteReminder,
	NotificationTypeInvoiceIssued,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
